package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/twpayne/go-fgddem"
)

func run() error {
	dir := flag.String("d", os.Getenv("FGDDEM_PATH"), "directory of converted GeoTIFFs")
	flag.Parse()

	if flag.NArg() != 2 {
		return errors.New("syntax: fgddem-sample latitude longitude")
	}
	lat, err := strconv.ParseFloat(flag.Arg(0), 64)
	if err != nil {
		return err
	}
	lon, err := strconv.ParseFloat(flag.Arg(1), 64)
	if err != nil {
		return err
	}

	es, err := fgddem.NewElevationService(os.DirFS(*dir))
	if err != nil {
		return err
	}
	defer es.Close()

	coords := [][]float64{{lon, lat}}
	elevations, err := es.Elevation4326(context.Background(), coords)
	if err != nil {
		return err
	}
	fmt.Println(elevations[0])

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
