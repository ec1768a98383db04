package identity

import "strconv"

var circledNumerals = [...]string{
	"①", "②", "③", "④", "⑤", "⑥", "⑦", "⑧", "⑨", "⑩",
	"⑪", "⑫", "⑬", "⑭", "⑮", "⑯", "⑰", "⑱", "⑲", "⑳",
}

// OrdinalGlyph renders n as a circled numeral, or "(n)" outside the glyph table.
func OrdinalGlyph(n int) string {
	if n >= 1 && n <= len(circledNumerals) {
		return circledNumerals[n-1]
	}
	return "(" + strconv.Itoa(n) + ")"
}

// MaskedName joins the target's display name with an ordinal glyph.
func MaskedName(targetName string, ordinal int) string {
	return targetName + " " + OrdinalGlyph(ordinal)
}
