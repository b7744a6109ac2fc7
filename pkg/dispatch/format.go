package dispatch

import (
	"fmt"
	"strings"

	"github.com/trempist/trempist/pkg/models"
	"github.com/trempist/trempist/pkg/notify"
	"github.com/trempist/trempist/pkg/store"
)

// Canned user-facing replies. All user-visible text is Hebrew.
const (
	helpText = `אני עוזר לתאם טרמפים 🚗
- נהגים: כתבו מאיפה לאן אתם נוסעים, באילו ימים ובאיזו שעה, וכמה מקומות פנויים.
- טרמפיסטים: כתבו מאיפה לאן אתם צריכים להגיע, באיזה תאריך ובאיזו שעה (אפשר גם טווח שעות).
- אפשר לבקש לראות את הרשומות שלכם, לעדכן אותן או למחוק.
כשתימצא התאמה — שני הצדדים יקבלו הודעה עם מספר הטלפון של הצד השני.`

	duplicateRideReply     = "הנסיעה הזאת כבר רשומה אצלך 🙂"
	duplicateRequestReply  = "הבקשה הזאת כבר רשומה אצלך 🙂"
	recordDeletedReply     = "נמחק בהצלחה ✅"
	recordNotFoundReply    = "לא מצאתי רשומה כזאת. אפשר לבקש לראות את הרשומות שלך כדי לבדוק."
	allRecordsDeletedReply = "כל הרשומות שלך נמחקו ✅"
	invalidRequestReply    = "לא הצלחתי להבין את הפרטים, אפשר לנסח שוב? למשל: \"נוסע מחיפה לתל אביב בימי ראשון ב-08:00\""
	systemErrorReply       = "משהו השתבש אצלנו, נסו שוב בעוד רגע 🙏"
)

func formatRideSaved(ride *models.DriverRide, warnings string, user *models.User, matches []models.Match, sendExternally bool) string {
	var b strings.Builder
	b.WriteString("נרשמה נסיעה: ")
	b.WriteString(describeDriverRide(ride))
	b.WriteString(warnings)
	appendRecordSummary(&b, user)
	appendMatchSummary(&b, len(matches), matchesInline(matches, sendExternally))
	return b.String()
}

func formatRequestSaved(req *models.HitchhikerRequest, warnings string, user *models.User, matches []models.Match, sendExternally bool) string {
	var b strings.Builder
	b.WriteString("נרשמה בקשת טרמפ: ")
	b.WriteString(describeHitchhikerRequest(req))
	b.WriteString(warnings)
	appendRecordSummary(&b, user)
	appendMatchSummary(&b, len(matches), matchesInline(matches, sendExternally))
	return b.String()
}

func appendRecordSummary(b *strings.Builder, user *models.User) {
	total := len(user.DriverRides) + len(user.HitchhikerRequests)
	if total > 1 {
		fmt.Fprintf(b, "\nיש לך כעת %d רשומות פעילות.", total)
	}
}

func appendMatchSummary(b *strings.Builder, count int, inline string) {
	switch {
	case count == 0:
		b.WriteString("\nעדיין אין התאמה — נודיע לך ברגע שתימצא!")
	case count == 1:
		b.WriteString("\nנמצאה התאמה אחת! 🎉")
	default:
		fmt.Fprintf(b, "\nנמצאו %d התאמות! 🎉", count)
	}
	b.WriteString(inline)
}

// matchesInline renders match details into the reply itself on the sandbox
// path, where no outbound notification is sent.
func matchesInline(matches []models.Match, sendExternally bool) string {
	if sendExternally || len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i := range matches {
		b.WriteString("\n")
		b.WriteString(notify.FormatForHitchhiker(&matches[i]))
	}
	return b.String()
}

func describeDriverRide(r *models.DriverRide) string {
	var b strings.Builder
	fmt.Fprintf(&b, "מ%s ל%s", r.Origin, r.Destination)
	if r.Recurring() {
		b.WriteString(" בימי ")
		b.WriteString(hebrewDays(r.Days))
	} else {
		fmt.Fprintf(&b, " בתאריך %s", r.TravelDate)
	}
	fmt.Fprintf(&b, " בשעה %s", r.DepartureTime)
	if r.ReturnTime != "" {
		fmt.Fprintf(&b, " (חזור %s)", r.ReturnTime)
	}
	fmt.Fprintf(&b, ", %d מקומות", r.AvailableSeats)
	return b.String()
}

func describeHitchhikerRequest(r *models.HitchhikerRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "מ%s ל%s בתאריך %s", r.Origin, r.Destination, r.TravelDate)
	if r.Flexible() {
		fmt.Fprintf(&b, " בין %s ל-%s", r.Earliest, r.Latest)
	} else {
		fmt.Fprintf(&b, " בשעה %s", r.DepartureTime)
	}
	if r.FlexibilityMinutes > 0 {
		fmt.Fprintf(&b, " (גמישות %d דק')", r.FlexibilityMinutes)
	}
	return b.String()
}

func formatRecordLists(lists store.RecordLists) string {
	if len(lists.DriverRides) == 0 && len(lists.HitchhikerRequests) == 0 {
		return "אין לך עדיין רשומות. כתבו לי לאן אתם נוסעים או לאן אתם צריכים טרמפ 🙂"
	}

	var b strings.Builder
	if len(lists.DriverRides) > 0 {
		b.WriteString("🚗 נסיעות שלך:\n")
		for i := range lists.DriverRides {
			r := &lists.DriverRides[i]
			fmt.Fprintf(&b, "%d. %s (מזהה %s)\n", i+1, describeDriverRide(r), shortID(r.ID))
		}
	}
	if len(lists.HitchhikerRequests) > 0 {
		b.WriteString("🙋 בקשות טרמפ שלך:\n")
		for i := range lists.HitchhikerRequests {
			r := &lists.HitchhikerRequests[i]
			fmt.Fprintf(&b, "%d. %s (מזהה %s)\n", i+1, describeHitchhikerRequest(r), shortID(r.ID))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func hebrewDays(days []string) string {
	parts := make([]string, 0, len(days))
	for _, day := range days {
		if wd, err := models.ParseWeekday(day); err == nil {
			parts = append(parts, models.HebrewWeekday(wd))
		}
	}
	return strings.Join(parts, ", ")
}

// shortID keeps the displayed record handle copyable in chat.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
