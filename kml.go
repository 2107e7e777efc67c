package fgddem

import (
	"io"
	"os"

	"github.com/twpayne/go-kml"
)

// WriteOverlayKML writes a KML document that drapes the image at href over
// bounds.
func WriteOverlayKML(w io.Writer, name, href string, bounds GeographicBounds) error {
	k := kml.KML(
		kml.Document(
			kml.Name(name),
			kml.GroundOverlay(
				kml.Name(name),
				kml.Icon(
					kml.Href(href),
				),
				kml.LatLonBox(
					kml.North(bounds.MaxLat),
					kml.South(bounds.MinLat),
					kml.East(bounds.MaxLng),
					kml.West(bounds.MinLng),
				),
			),
		),
	)
	return k.WriteIndent(w, "", "  ")
}

// WriteOverlayKMLFile writes an overlay KML document to path.
func WriteOverlayKMLFile(path, name, href string, bounds GeographicBounds) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOverlayKML(file, name, href, bounds); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
