package registry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ReservedName is the identifier of the generated registry constructor;
// no tag may map to it.
const ReservedName = "Registry"

// GoName maps a tag name to the exported Go identifier of its generated
// function: "users.profile" becomes UsersProfile, "user-card" UserCard.
func GoName(tagName string) string {
	parts := strings.FieldsFunc(tagName, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	titler := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titler.String(p))
	}
	id := b.String()
	if id == "" || id[0] >= '0' && id[0] <= '9' {
		id = "Tag" + id
	}
	return id
}
