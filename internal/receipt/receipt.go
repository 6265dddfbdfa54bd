// Package receipt renders the PNG card sent with outgoing payment
// notifications.
package receipt

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// The card is laid out at half size and scaled up, since the only bundled
// face is a 7x13 bitmap.
const (
	width  = 400
	height = 500
	scale  = 2

	margin  = 25
	radius  = 10
	rowsTop = 225
	rowStep = 40
	labelX  = 50
	valueX  = 350
)

var (
	white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	shade = color.RGBA{0xE2, 0xE8, 0xF0, 0xFF}
	olive = color.RGBA{0x4A, 0x57, 0x24, 0xFF}
	green = color.RGBA{0x1F, 0xB4, 0x86, 0xFF}
	ink   = color.RGBA{0x2D, 0x37, 0x48, 0xFF}
	grey  = color.RGBA{0xA0, 0xAE, 0xC0, 0xFF}
	navy  = color.RGBA{0x1A, 0x36, 0x5D, 0xFF}
	line  = color.RGBA{0x2D, 0x4A, 0x8C, 0xFF}
)

// Receipt is the text printed on the card.
type Receipt struct {
	Amount       string
	Counterparty string
	Date         string
	Time         string
	Reference    string
}

// FromRecord fills a receipt from a payment record, using placeholder for
// absent fields.
func FromRecord(rec *domain.PaymentRecord, placeholder string) Receipt {
	r := Receipt{
		Amount:    domain.Value(rec.Amount, placeholder),
		Date:      domain.Value(rec.Date, placeholder),
		Time:      domain.Value(rec.Time, placeholder),
		Reference: domain.Value(rec.Reference, placeholder),
	}

	switch d := rec.Details.(type) {
	case domain.Sent:
		r.Counterparty = domain.Value(d.Recipient, placeholder)
	case domain.Received:
		r.Counterparty = domain.Value(d.Sender, placeholder)
	case domain.Subscription:
		r.Counterparty = domain.Value(d.Merchant, placeholder)
	case domain.Refund:
		r.Counterparty = domain.Value(d.Sender, placeholder)
	default:
		panic(fmt.Sprintf("receipt: unknown details type %T", rec.Details))
	}
	return r
}

// Render draws the receipt and encodes it as PNG.
func Render(r Receipt) ([]byte, error) {
	src := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(src, src.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	// Summary card.
	fillRoundRect(src, image.Rect(margin, margin+3, width-margin, 178), radius, shade)
	fillRoundRect(src, image.Rect(margin, margin, width-margin, 175), radius, white)
	fillCircle(src, width/2, 60, 20, olive)
	strokeSmile(src, width/2, 60, 10, white)

	drawText(src, "Recu de paiement", width/2, 105, green, alignCenter)
	drawText(src, fmt.Sprintf("Vous avez envoye %s a %s", r.Amount, r.Counterparty), width/2, 130, ink, alignCenter)
	drawText(src, "#"+r.Reference, width/2, 150, grey, alignCenter)

	// Detail card.
	fillRoundRect(src, image.Rect(margin, 190, width-margin, height-margin), radius, navy)
	rows := [][2]string{
		{"Montant", r.Amount},
		{"Date et heure", r.Date + " a " + r.Time},
		{"Beneficiaire", r.Counterparty},
		{"Reference", r.Reference},
	}
	for i, row := range rows {
		y := rowsTop + i*rowStep
		drawText(src, row[0], labelX, y, grey, alignLeft)
		drawText(src, row[1], valueX, y, white, alignRight)
		draw.Draw(src, image.Rect(labelX, y+10, valueX, y+11), image.NewUniform(line), image.Point{}, draw.Src)
	}
	drawText(src, "PayPal Listener", width/2, height-margin-20, white, alignCenter)

	dst := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("Render: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

type alignment int

const (
	alignLeft alignment = iota
	alignCenter
	alignRight
)

const maxTextWidth = width - 2*margin - 10

func drawText(img draw.Image, s string, x, y int, c color.Color, align alignment) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: basicfont.Face7x13}

	s = fold(s)
	for d.MeasureString(s).Round() > maxTextWidth && len(s) > 3 {
		s = s[:len(s)-4] + "..."
	}

	w := d.MeasureString(s).Round()
	switch align {
	case alignCenter:
		x -= w / 2
	case alignRight:
		x -= w
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

var currency = strings.NewReplacer("€ EUR", "EUR", "€", "EUR", "’", "'", "\u00a0", " ")

// fold reduces text to the ASCII range of the bitmap face: accents are
// stripped and the euro sign is spelled out.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = currency.Replace(out)
	out = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

func fillRoundRect(img *image.RGBA, r image.Rectangle, rad int, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cx, cy := x, y
			switch {
			case x < r.Min.X+rad:
				cx = r.Min.X + rad
			case x >= r.Max.X-rad:
				cx = r.Max.X - rad - 1
			}
			switch {
			case y < r.Min.Y+rad:
				cy = r.Min.Y + rad
			case y >= r.Max.Y-rad:
				cy = r.Max.Y - rad - 1
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= rad*rad {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, rad int, c color.RGBA) {
	for y := cy - rad; y <= cy+rad; y++ {
		for x := cx - rad; x <= cx+rad; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= rad*rad {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// strokeSmile draws the lower part of a ring.
func strokeSmile(img *image.RGBA, cx, cy, rad int, c color.RGBA) {
	inner, outer := (rad-1)*(rad-1), (rad+1)*(rad+1)
	for y := cy + rad/3; y <= cy+rad+1; y++ {
		for x := cx - rad - 1; x <= cx+rad+1; x++ {
			dx, dy := x-cx, y-cy
			if d := dx*dx + dy*dy; d >= inner && d <= outer {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
