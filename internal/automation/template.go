package automation

import "strings"

// fallbackFirstName substitutes for {first_name} when the commenter's
// handle is absent from the webhook event.
const fallbackFirstName = "there"

// PostLink builds the canonical Instagram permalink for a media ID,
// substituted for {link} in DM templates.
func PostLink(mediaID string) string {
	return "https://www.instagram.com/p/" + mediaID + "/"
}

// RenderTemplate substitutes the {first_name} and {link} placeholders in
// a campaign's DM template. Unknown placeholders pass through untouched.
func RenderTemplate(template, firstName, mediaID string) string {
	if firstName == "" {
		firstName = fallbackFirstName
	}
	return strings.NewReplacer(
		"{first_name}", firstName,
		"{link}", PostLink(mediaID),
	).Replace(template)
}
