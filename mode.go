package tabcsv

import "fmt"

// Mode selects how an Output reconciles rows written before its schema grew.
type Mode int

const (
	// ModeNone never extends the schema. Unknown keys are ignored and
	// missing keys are written empty.
	ModeNone Mode = iota
	// ModeCopyOnClose extends the schema in memory and rewrites the whole
	// file with the final header and rectangular rows when the Output closes.
	ModeCopyOnClose
	// ModeFixedHeaderLength reserves a fixed number of bytes for the header
	// and patches it in place whenever the schema grows. Earlier rows keep
	// their original width.
	ModeFixedHeaderLength
)

var modeNames = map[Mode]string{
	ModeNone:              "none",
	ModeCopyOnClose:       "copy-on-close",
	ModeFixedHeaderLength: "fixed-header-length",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a mode name to a Mode. The empty string is ModeNone;
// "copy" and "fixed_header_length" are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "none":
		return ModeNone, nil
	case "copy-on-close", "copy":
		return ModeCopyOnClose, nil
	case "fixed-header-length", "fixed_header_length":
		return ModeFixedHeaderLength, nil
	}
	return ModeNone, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
