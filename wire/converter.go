package wire

import "github.com/creastat/live/core"

// ToCoreParts converts wire parts to their event-layer representation
func ToCoreParts(parts []Part) []core.Part {
	out := make([]core.Part, 0, len(parts))
	for _, p := range parts {
		cp := core.Part{Text: p.Text}
		if p.InlineData != nil {
			cp.InlineData = &core.InlineData{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			}
		}
		out = append(out, cp)
	}
	return out
}

// FromCoreParts converts event-layer parts back to wire parts
func FromCoreParts(parts []core.Part) []Part {
	out := make([]Part, 0, len(parts))
	for _, p := range parts {
		wp := Part{Text: p.Text}
		if p.InlineData != nil {
			wp.InlineData = &InlineData{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			}
		}
		out = append(out, wp)
	}
	return out
}
