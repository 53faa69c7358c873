package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// LinkSender prints a wa.me click-to-chat link per reminder. The operator
// opens each link in a logged-in WhatsApp session and presses send.
type LinkSender struct {
	out io.Writer
}

func NewLinkSender(out io.Writer) *LinkSender {
	return &LinkSender{out: out}
}

// Link builds the click-to-chat URL for phone with text prefilled.
func Link(phone, text string) string {
	return "https://wa.me/" + digits(phone) + "?text=" + url.QueryEscape(text)
}

func (s *LinkSender) Send(ctx context.Context, phone, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(s.out, "  -> %s\n     %s\n", phone, Link(phone, text))
	return err
}
