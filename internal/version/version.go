// ABOUTME: Product and version constants
// ABOUTME: Reported in server/hello and the server status view
package version

const (
	// Version is the release version
	Version = "0.1.0"
	// Product is the product name
	Product = "proxaudio"
	// Manufacturer is the publisher name
	Manufacturer = "Resonate Protocol"
)

// String returns "product version"
func String() string {
	return Product + " " + Version
}
