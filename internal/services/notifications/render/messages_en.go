package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notification.generic.title", defaultGenericTitle)
	message.SetString(lang, "notification.generic.body", defaultGenericBody)
	message.SetString(lang, "notification.verification_processed.title", "Verification update")
	message.SetString(lang, "notification.verification_processed.body.verified", "Your video %q was verified.")
	message.SetString(lang, "notification.verification_processed.body.rejected", "Your video %q was rejected.")
	message.SetString(lang, "notification.verification_processed.body.ignored", "A reviewer passed on your video %q.")
}
