package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.MustParse("pt-BR")

	message.SetString(lang, "notification.generic.title", "Notificação")
	message.SetString(lang, "notification.generic.body", "Você tem uma nova notificação.")
	message.SetString(lang, "notification.verification_processed.title", "Atualização de verificação")
	message.SetString(lang, "notification.verification_processed.body.verified", "Seu vídeo %q foi verificado.")
	message.SetString(lang, "notification.verification_processed.body.rejected", "Seu vídeo %q foi rejeitado.")
	message.SetString(lang, "notification.verification_processed.body.ignored", "Um revisor dispensou seu vídeo %q.")
}
