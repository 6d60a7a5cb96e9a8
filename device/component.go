package device

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/arloliu/go-ercp/ercp"
)

type componentKind uint8

const (
	kindFirmware componentKind = iota + 1
	kindProtocolLibrary
	kindOther
)

// Component identifies a device sub-module whose version can be queried.
//
// The zero value is not a valid component.
type Component struct {
	kind componentKind
	id   byte
}

// Well-known components.
var (
	Firmware        = Component{kind: kindFirmware, id: ercp.ComponentFirmware}
	ProtocolLibrary = Component{kind: kindProtocolLibrary, id: ercp.ComponentERCPLibrary}
)

// OtherComponent returns a component identified only by its wire byte.
func OtherComponent(id byte) Component {
	return Component{kind: kindOther, id: id}
}

// ParseComponent parses the text form of a component.
//
// "firmware" and "fw" name the firmware, "ercp" the protocol library. Aliases are
// case-sensitive. Any other input must be exactly two hexadecimal digits, in either case.
func ParseComponent(s string) (Component, error) {
	switch s {
	case "firmware", "fw":
		return Firmware, nil
	case "ercp":
		return ProtocolLibrary, nil
	}

	if len(s) != 2 {
		return Component{}, fmt.Errorf("device: invalid component %q: expected firmware, fw, ercp or a 2-digit hex byte", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return Component{}, fmt.Errorf("device: invalid component %q: %w", s, err)
	}

	return OtherComponent(b[0]), nil
}

// Byte returns the wire identifier of the component.
func (c Component) Byte() byte {
	return c.id
}

// IsValid reports whether c was built by ParseComponent, OtherComponent or is a well-known
// component.
func (c Component) IsValid() bool {
	return c.kind != 0
}

// String returns the canonical text form, accepted by ParseComponent.
func (c Component) String() string {
	switch c.kind {
	case kindFirmware:
		return "firmware"
	case kindProtocolLibrary:
		return "ercp"
	case kindOther:
		return fmt.Sprintf("%02x", c.id)
	default:
		return "invalid"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Component) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, errors.New("device: cannot marshal invalid component")
	}

	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Component) UnmarshalText(text []byte) error {
	parsed, err := ParseComponent(string(text))
	if err != nil {
		return err
	}
	*c = parsed

	return nil
}
