package hardware

import (
	"bytes"
	"fmt"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
)

// ESC/POS command fragments used by the ticket layouts.
var (
	escInit        = []byte{0x1B, 0x40}             // ESC @
	escAlignCenter = []byte{0x1B, 0x61, 0x01}       // ESC a 1
	escAlignLeft   = []byte{0x1B, 0x61, 0x00}       // ESC a 0
	escBoldOn      = []byte{0x1B, 0x45, 0x01}       // ESC E 1
	escBoldOff     = []byte{0x1B, 0x45, 0x00}       // ESC E 0
	escDoubleOn    = []byte{0x1D, 0x21, 0x11}       // GS ! double width+height
	escDoubleOff   = []byte{0x1D, 0x21, 0x00}       // GS ! normal
	escFeedCut     = []byte{0x1D, 0x56, 0x42, 0x03} // GS V B 3: feed and partial cut
)

const ticketTimeLayout = "2006-01-02 15:04:05"

// ticketBuilder accumulates one complete print job. The buffer is
// always regenerated from scratch per attempt, never resumed.
type ticketBuilder struct {
	buf bytes.Buffer
}

func newTicketBuilder() *ticketBuilder {
	b := &ticketBuilder{}
	b.buf.Write(escInit)
	return b
}

func (b *ticketBuilder) center() *ticketBuilder {
	b.buf.Write(escAlignCenter)
	return b
}

func (b *ticketBuilder) left() *ticketBuilder {
	b.buf.Write(escAlignLeft)
	return b
}

func (b *ticketBuilder) title(text string) *ticketBuilder {
	b.buf.Write(escDoubleOn)
	b.buf.WriteString(text)
	b.buf.WriteByte('\n')
	b.buf.Write(escDoubleOff)
	return b
}

func (b *ticketBuilder) line(text string) *ticketBuilder {
	b.buf.WriteString(text)
	b.buf.WriteByte('\n')
	return b
}

func (b *ticketBuilder) linef(format string, args ...interface{}) *ticketBuilder {
	return b.line(fmt.Sprintf(format, args...))
}

func (b *ticketBuilder) bold(text string) *ticketBuilder {
	b.buf.Write(escBoldOn)
	b.buf.WriteString(text)
	b.buf.WriteByte('\n')
	b.buf.Write(escBoldOff)
	return b
}

func (b *ticketBuilder) separator() *ticketBuilder {
	return b.line("--------------------------------")
}

// qr encodes data as a QR symbol via GS ( k.
func (b *ticketBuilder) qr(data string) *ticketBuilder {
	payload := []byte(data)
	storeLen := len(payload) + 3

	// model 2
	b.buf.Write([]byte{0x1D, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00})
	// module size 6
	b.buf.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, 0x06})
	// error correction level M
	b.buf.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, 0x31})
	// store data
	b.buf.Write([]byte{0x1D, 0x28, 0x6B, byte(storeLen & 0xFF), byte(storeLen >> 8), 0x31, 0x50, 0x30})
	b.buf.Write(payload)
	// print symbol
	b.buf.Write([]byte{0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30})
	return b
}

func (b *ticketBuilder) feed(lines int) *ticketBuilder {
	for i := 0; i < lines; i++ {
		b.buf.WriteByte('\n')
	}
	return b
}

func (b *ticketBuilder) cut() []byte {
	b.buf.Write(escFeedCut)
	return b.buf.Bytes()
}

// BuildEntryTicket renders the fixed entry ticket layout.
func BuildEntryTicket(ticket *models.TicketData, siteName string) []byte {
	b := newTicketBuilder()
	b.center().
		title(siteName).
		bold("ENTRY TICKET").
		separator().
		left().
		linef("Ticket   : %s", ticket.Barcode).
		linef("Entry    : %s", ticket.EntryTime.Format(ticketTimeLayout)).
		linef("Vehicle  : %s", ticket.VehicleType).
		linef("Plate    : %s", ticket.PlateNumber).
		linef("Operator : %s", ticket.OperatorID).
		separator().
		center().
		qr(ticket.Barcode).
		feed(1).
		line("Keep this ticket.").
		line("Lost ticket incurs a penalty.").
		feed(2)
	return b.cut()
}

// BuildExitReceipt renders the payment receipt printed at exit.
func BuildExitReceipt(ticket *models.TicketData, amount int64, currency string, paidAt time.Time) []byte {
	b := newTicketBuilder()
	b.center().
		title(currencyHeader(currency)).
		bold("PAYMENT RECEIPT").
		separator().
		left().
		linef("Ticket   : %s", ticket.Barcode).
		linef("Plate    : %s", ticket.PlateNumber).
		linef("Entry    : %s", ticket.EntryTime.Format(ticketTimeLayout)).
		linef("Exit     : %s", paidAt.Format(ticketTimeLayout)).
		linef("Duration : %s", formatDuration(paidAt.Sub(ticket.EntryTime))).
		separator().
		bold(fmt.Sprintf("TOTAL    : %s %d", currency, amount)).
		separator().
		center().
		line("Thank you for parking with us.").
		feed(2)
	return b.cut()
}

func currencyHeader(currency string) string {
	if currency == "" {
		return "PARKING"
	}
	return "PARKING (" + currency + ")"
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
