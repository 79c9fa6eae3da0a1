package config

import (
	"strings"
	"time"
)

// strftimeDirectives maps the small set of strftime directives the settings
// schema's clip_name_formatting field actually uses to Go's reference-time
// layout tokens. Unrecognized directives pass through unchanged.
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
}

// FormatStrftime renders a (small) strftime-style template against t. It
// supports the directives wayclip's default clip_name_formatting uses
// (%Y-%m-%d_%H-%M-%S) and passes through anything else literally.
//
// Each directive is formatted individually and the surrounding literal text
// is copied through untouched, rather than assembling one combined Go layout
// string and calling t.Format once on it — the latter would let literal text
// that happens to contain reference-layout digits (e.g. "15", "2006", "Jan")
// get reinterpreted as part of the layout.
func FormatStrftime(template string, t time.Time) string {
	var out strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) {
			if tok, ok := strftimeDirectives[template[i+1]]; ok {
				out.WriteString(t.Format(tok))
				i++
				continue
			}
		}
		out.WriteByte(template[i])
	}
	return out.String()
}
