package command

import (
	"errors"
	"fmt"
	"strings"
)

const (
	replyNotAuthorized  = "❌ Apenas administradores podem usar este comando."
	replyNoParticipants = "⚠️ Não foi possível coletar participantes."
	replyEmptyPayload   = "📝 Use: !anuncio [-b] Seu texto aqui"
	replyInvalidFormat  = "❌ Use o formato: !num 1 a 50"
	replyInvalidRange   = "⚠️ Números inválidos!"
	replyMissingTarget  = "❌ Marque exatamente um participante: !ban @pessoa"
	replyDelivery       = "⚠️ Falha ao enviar as marcações. Tente novamente em alguns minutos."
	replyRemoval        = "❌ Não foi possível remover o participante. Verifique se o bot é administrador do grupo."
	replyRemoved        = "✅ Participante removido."
	replyGeneric        = "⚠️ Ocorreu um erro ao executar o comando."

	// DefaultRedirectReply answers every direct message.
	DefaultRedirectReply = "Olá! Este bot só responde a comandos em grupos."

	markAllHeader     = "🚨 Atenção, comunicado para todos!"
	announceGroupFmt  = "📢 *Anúncio Importante!*\n\n%s"
	announceDirectFmt = "📢 *Anúncio:*\n\n%s"
	announceSentFmt   = "✅ Anúncio enviado para %d participantes."
	broadcastStartFmt = "📣 Enviando broadcast para %d contatos (DM)..."
	broadcastDoneFmt  = "✅ Broadcast concluído: %d enviados, %d falhas."
	raffleWinnerFmt   = "🎉 *SORTEIO!* 🎉\nO vencedor(a) é: %s"
	randomNumberFmt   = "🎲 Número sorteado entre *%d* e *%d*: *%d*"
)

// helpText lists the commands. The batch size is shown so admins know how
// many people each mention message carries.
func helpText(batchSize int, allowBroadcast bool) string {
	var b strings.Builder
	b.WriteString("🤖 *Comandos disponíveis*\n\n")
	b.WriteString("!help - mostra esta mensagem\n")
	fmt.Fprintf(&b, "!even - marca todos os participantes (%d por mensagem)\n", batchSize)
	b.WriteString("!anuncio texto - envia um anúncio marcando todos\n")
	if allowBroadcast {
		b.WriteString("!anuncio -b texto - envia o anúncio no privado de cada participante\n")
	}
	b.WriteString("!sorteio - sorteia um participante\n")
	b.WriteString("!num 1 a 50 - sorteia um número no intervalo\n")
	b.WriteString("!ban @pessoa - remove o participante marcado\n\n")
	b.WriteString("Somente administradores podem usar os comandos além do !help.")
	return b.String()
}

// replyFor maps a command failure to the text shown in the group.
func replyFor(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return replyNotAuthorized
	case errors.Is(err, ErrEmptyPayload):
		return replyEmptyPayload
	case errors.Is(err, ErrInvalidFormat):
		return replyInvalidFormat
	case errors.Is(err, ErrInvalidRange):
		return replyInvalidRange
	case errors.Is(err, ErrMissingTarget):
		return replyMissingTarget
	case errors.Is(err, ErrNoParticipants):
		return replyNoParticipants
	case errors.Is(err, ErrDelivery):
		return replyDelivery
	case errors.Is(err, ErrRemoval):
		return replyRemoval
	default:
		return replyGeneric
	}
}
