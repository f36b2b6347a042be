package tasks

import (
	"sort"
	"strings"
)

// Response tags a task may emit through Tick.Respond.
const (
	TagRespond  = "[RES]"
	TagInform   = "[INF]"
	TagAnswer   = "[ANS]"
	TagQuestion = "[Q]"
	TagSay      = "[SAY]"
	TagMoreInfo = "[MI]"
	TagInStyle  = "[ITSOC]"
	TagNoOffer  = "[WOFA]"
	TagBrief    = "[3S]"
)

const (
	instructionsOpen  = "[INSTRUCTIONS-FOR-NEXT-RESPONSE]"
	instructionsClose = "[/INSTRUCTIONS-FOR-NEXT-RESPONSE]"
)

// Token builds a response token: tag followed by a free-text payload.
func Token(tag, text string) string {
	if text == "" {
		return tag
	}
	return tag + " " + text
}

type expansion struct {
	tag    string
	phrase string
}

// defaultExpansions is applied top to bottom. Tags that reference [ITSOC]
// or [3S] come before them.
var defaultExpansions = []expansion{
	{TagRespond, "[ITSOC] very briefly respond to the user in no more than [3S] "},
	{TagInform, "[ITSOC] very briefly inform the user in no more than [3S] "},
	{TagAnswer, "[ITSOC] very briefly respond to the user considering the following information: "},
	{TagQuestion, "[ITSOC] Ask the user the following question: "},
	{TagSay, "[ITSOC], say: "},
	{TagMoreInfo, "[ITSOC] Ask for the following information: "},
	{TagInStyle, "In the style of {char_name}{verb}, spoken like a genuine dialogue "},
	{TagNoOffer, "Without offering any further assistance, "},
	{TagBrief, "Three sentences"},
}

// Formatter turns collected response tokens into one instruction block.
type Formatter struct {
	expansions []expansion
}

// NewFormatter returns a Formatter with the built-in tag table.
func NewFormatter() *Formatter {
	return &Formatter{expansions: defaultExpansions}
}

// Format expands every token and wraps the result. Tokens are sorted so the
// output does not depend on set iteration order; blank tokens are skipped.
// An empty input gives "".
func (f *Formatter) Format(tokens []string) string {
	lines := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		lines = append(lines, tok)
	}
	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)
	for i, line := range lines {
		lines[i] = f.absorbSeparator(line)
	}

	text := f.expand(strings.Join(lines, "\n"))
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return instructionsOpen + "\n" + text + "\n" + instructionsClose
}

// absorbSeparator drops the space between a token's leading tag and its
// payload when the tag's phrase already ends in one. Tags elsewhere in the
// token, and tags inside phrases, keep their surrounding text.
func (f *Formatter) absorbSeparator(token string) string {
	for _, e := range f.expansions {
		if strings.HasPrefix(token, e.tag+" ") && strings.HasSuffix(e.phrase, " ") {
			return e.tag + token[len(e.tag)+1:]
		}
	}
	return token
}

// expand applies the table as literal replacements in order.
func (f *Formatter) expand(text string) string {
	for _, e := range f.expansions {
		text = strings.ReplaceAll(text, e.tag, e.phrase)
	}
	return text
}

// Persona fills the {char_name} and {verb} placeholders the formatter leaves
// in place.
type Persona struct {
	CharName string
	Verb     string
}

// Apply substitutes the persona into text. Empty fields are substituted as-is.
func (p Persona) Apply(text string) string {
	return strings.NewReplacer("{char_name}", p.CharName, "{verb}", p.Verb).Replace(text)
}
