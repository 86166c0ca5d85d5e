package staffing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// Percent is a whole percentage. The search service renders match scores
// as strings like "87%"; plain numbers are accepted too.
type Percent int

func (p *Percent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return p.UnmarshalText([]byte(s))
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing percent %s: %w", data, err)
	}
	*p = Percent(math.Round(f))
	return nil
}

func (p *Percent) UnmarshalText(text []byte) error {
	s := strings.TrimSuffix(strings.TrimSpace(string(text)), "%")
	if s == "" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing percent %q: %w", text, err)
	}
	*p = Percent(math.Round(f))
	return nil
}

func (p Percent) String() string {
	return strconv.Itoa(int(p)) + "%"
}

func (Percent) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: json.Number("0"), Maximum: json.Number("100")},
			{Type: "string", Pattern: `^\d+(\.\d+)?%$`},
		},
	}
}
