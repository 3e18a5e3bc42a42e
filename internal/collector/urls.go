package collector

import "regexp"

var (
	webSessionURL = regexp.MustCompile(`(http|https)://cloudx\.azurewebsites\.net[\w.,@?^=%&:/~+#-]*[\w@?^=%&/~+#-]`)
	sessionURL    = regexp.MustCompile(`(lnl-nat|res-steam)://\S+`)
)

// ExtractWebSessionURL returns the first browser-openable session URL found
// in the text, or an empty string.
func ExtractWebSessionURL(text string) string {
	return webSessionURL.FindString(text)
}

// ExtractSessionURL returns the first native-client session URI found in the
// text, or an empty string.
func ExtractSessionURL(text string) string {
	return sessionURL.FindString(text)
}
