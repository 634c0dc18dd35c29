package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/fiffu/ttquick/lib/models"
)

var (
	//go:embed availability.html
	availabilityHTML     string
	availabilityTemplate = template.Must(template.New("availability.html").Funcs(funcs).Parse(availabilityHTML))

	//go:embed welcome.html
	welcomeHTML     string
	welcomeTemplate = template.Must(template.New("welcome.html").Parse(welcomeHTML))

	funcs = template.FuncMap{"slotTime": FormatSlotTime}
)

// maxListedSlots caps the number of slots rendered in one email.
const maxListedSlots = 10

type Format interface {
	Subject() string
	Body() string
	Text() string
}

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

// FormatSlotTime renders a slot timestamp for humans, falling back to the raw
// value when it does not parse.
func FormatSlotTime(s models.SlotInfo) string {
	t, err := s.Start()
	if err != nil {
		return s.StartTimestamp
	}
	return t.Format("Mon, Jan 2 2006 at 3:04 PM")
}

type AvailabilityEmailFormat struct {
	User         *models.User
	Notification *models.Notification
	Location     *models.Location
	Slots        []models.SlotInfo
	ManageURL    string
}

func (ef *AvailabilityEmailFormat) Subject() string {
	return fmt.Sprintf("Trusted Travel Quick: appointment available at %s", ef.Location.DisplayName())
}

func (ef *AvailabilityEmailFormat) Body() string {
	return mustFillTemplate(availabilityTemplate, ef)
}

func (ef *AvailabilityEmailFormat) Text() string {
	return PlainText(ef.Body())
}

// ListedSlots is the subset of slots shown in the email.
func (ef *AvailabilityEmailFormat) ListedSlots() []models.SlotInfo {
	if len(ef.Slots) > maxListedSlots {
		return ef.Slots[:maxListedSlots]
	}
	return ef.Slots
}

func (ef *AvailabilityEmailFormat) MoreSlots() int {
	return len(ef.Slots) - len(ef.ListedSlots())
}

type WelcomeEmailFormat struct {
	User      *models.User
	ManageURL string
}

func (ef *WelcomeEmailFormat) Subject() string {
	return "Welcome to Trusted Travel Quick"
}

func (ef *WelcomeEmailFormat) Body() string {
	return mustFillTemplate(welcomeTemplate, ef)
}

func (ef *WelcomeEmailFormat) Text() string {
	return PlainText(ef.Body())
}
