package timeline

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"howett.net/plist"

	"github.com/ivlev/heicwall/internal/wallpaper"
)

// NamespaceURI is the namespace bound to the apple_desktop prefix.
const NamespaceURI = "http://ns.apple.com/namespace/1.0/"

// ContentType is the MIME type of the packet when stored as a HEIF item.
const ContentType = "application/rdf+xml"

var (
	// ErrNoTimeline is returned when a packet carries no apple_desktop:h24 value.
	ErrNoTimeline = errors.New("no apple_desktop:h24 timeline in metadata")
	// ErrSolarUnsupported is returned for solar-position timelines.
	ErrSolarUnsupported = errors.New("solar timelines are not supported")
)

const packetTemplate = "<?xpacket begin='\ufeff' id='W5M0MpCehiHzreSzNTczkc9d'?>\n" +
	"<x:xmpmeta xmlns:x='adobe:ns:meta/'>\n" +
	"  <rdf:RDF xmlns:rdf='http://www.w3.org/1999/02/22-rdf-syntax-ns#'>\n" +
	"    <rdf:Description xmlns:apple_desktop='" + NamespaceURI + "' apple_desktop:h24='%s'/>\n" +
	"  </rdf:RDF>\n" +
	"</x:xmpmeta>\n" +
	"<?xpacket end='w'?>\n"

// payload mirrors the property list the wallpaper engine reads:
// {"ti": [{"t": 0.25, "i": 0}, ...], "ap": {"l": 0, "d": 1}}.
type payload struct {
	TimeInfo   []payloadTime      `plist:"ti"`
	Appearance *payloadAppearance `plist:"ap,omitempty"`
}

type payloadTime struct {
	Time  float64 `plist:"t"`
	Index int     `plist:"i"`
}

type payloadAppearance struct {
	Light *int `plist:"l,omitempty"`
	Dark  *int `plist:"d,omitempty"`
}

func (t *Timeline) payload() payload {
	p := payload{TimeInfo: make([]payloadTime, len(t.Entries))}
	for i, e := range t.Entries {
		p.TimeInfo[i] = payloadTime{Time: e.Offset, Index: e.Index}
	}
	var ap payloadAppearance
	if idx, ok := t.Light(); ok {
		ap.Light = &idx
	}
	if idx, ok := t.Dark(); ok {
		ap.Dark = &idx
	}
	if ap.Light != nil || ap.Dark != nil {
		p.Appearance = &ap
	}
	return p
}

// Plist returns the binary property list that backs the h24 attribute.
func (t *Timeline) Plist() ([]byte, error) {
	if t == nil || len(t.Entries) == 0 {
		return nil, wallpaper.ErrEmptyManifest
	}
	data, err := plist.Marshal(t.payload(), plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline plist: %w", err)
	}
	return data, nil
}

// Encode serializes the timeline into a complete XMP packet. The output is
// a pure function of the entries.
func (t *Timeline) Encode() ([]byte, error) {
	data, err := t.Plist()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(packetTemplate, base64.StdEncoding.EncodeToString(data))), nil
}

// Decode parses an XMP packet produced by Encode (or by macOS tooling) and
// rebuilds the timeline.
func Decode(packet []byte) (*Timeline, error) {
	value, err := findH24(packet)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode h24 base64: %w", err)
	}
	var p payload
	if _, err := plist.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode h24 plist: %w", err)
	}
	return fromPayload(p)
}

func fromPayload(p payload) (*Timeline, error) {
	if len(p.TimeInfo) == 0 {
		return nil, fmt.Errorf("%w: empty ti array", ErrNoTimeline)
	}
	tl := &Timeline{Entries: make([]Entry, len(p.TimeInfo))}
	byIndex := make(map[int]int, len(p.TimeInfo))
	for i, ti := range p.TimeInfo {
		if ti.Index < 0 {
			return nil, fmt.Errorf("timeline entry %d: negative frame index %d", i, ti.Index)
		}
		tl.Entries[i] = Entry{Index: ti.Index, Offset: ti.Time}
		byIndex[ti.Index] = i
	}
	if p.Appearance != nil {
		assign := func(ref *int, role wallpaper.Appearance) error {
			if ref == nil {
				return nil
			}
			pos, ok := byIndex[*ref]
			if !ok {
				return fmt.Errorf("appearance %s references unknown frame %d", role, *ref)
			}
			tl.Entries[pos].Role = role
			return nil
		}
		if err := assign(p.Appearance.Light, wallpaper.AppearanceLight); err != nil {
			return nil, err
		}
		if err := assign(p.Appearance.Dark, wallpaper.AppearanceDark); err != nil {
			return nil, err
		}
	}
	return tl, nil
}

// findH24 walks the packet and returns the apple_desktop:h24 value, given
// either as an attribute of rdf:Description or as a child element.
func findH24(packet []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(packet))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", ErrNoTimeline
		}
		if err != nil {
			return "", fmt.Errorf("parse xmp: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Space != NamespaceURI {
				continue
			}
			switch attr.Name.Local {
			case "h24":
				return attr.Value, nil
			case "solar":
				return "", ErrSolarUnsupported
			}
		}
		if start.Name.Space == NamespaceURI {
			switch start.Name.Local {
			case "h24":
				var text string
				if err := dec.DecodeElement(&text, &start); err != nil {
					return "", fmt.Errorf("parse xmp h24 element: %w", err)
				}
				return text, nil
			case "solar":
				return "", ErrSolarUnsupported
			}
		}
	}
}
