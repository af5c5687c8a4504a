// ABOUTME: Version and device identity reported to servers
// ABOUTME: Version may be overridden at build time with -ldflags "-X"
package version

// Version is the software version.
var Version = "0.1.0"

const (
	Product      = "Sendspin Core Player"
	Manufacturer = "Sendspin"
)
