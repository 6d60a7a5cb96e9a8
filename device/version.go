package device

import "fmt"

// Version is a protocol version reported by a device.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Reply is the raw reply to a custom command.
type Reply struct {
	Code  byte
	Value []byte
}

// String renders the reply as its code and value bytes, e.g. "0x4B [01 02 FF]".
func (r Reply) String() string {
	return fmt.Sprintf("0x%s [% X]", FormatCode(r.Code), r.Value)
}

// Info gathers the identification of a device.
//
// A field left empty could not be read; the matching error is in Errors.
type Info struct {
	Description     string
	FirmwareVersion string
	ERCPVersion     string

	Errors []error
}
