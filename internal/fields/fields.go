// Package fields pulls labeled certificate fields out of OCR text.
package fields

import (
	"regexp"
	"strings"
)

// Unknown marks a field that no pattern recovered.
const Unknown = "Unknown"

// Record holds the seven certificate fields. Every field is either a
// trimmed recovered value or Unknown.
type Record struct {
	StudentName       string `json:"studentName"`
	RollNumber        string `json:"rollNumber"`
	Course            string `json:"course"`
	Institution       string `json:"institution"`
	Year              string `json:"year"`
	Grade             string `json:"grade"`
	CertificateNumber string `json:"certificateNumber"`
}

// NewRecord returns a record with every field set to Unknown.
func NewRecord() Record {
	return Record{
		StudentName:       Unknown,
		RollNumber:        Unknown,
		Course:            Unknown,
		Institution:       Unknown,
		Year:              Unknown,
		Grade:             Unknown,
		CertificateNumber: Unknown,
	}
}

// Values returns the fields in declaration order.
func (r Record) Values() []string {
	return []string{r.StudentName, r.RollNumber, r.Course, r.Institution, r.Year, r.Grade, r.CertificateNumber}
}

// Resolved counts the fields that are not Unknown.
func (r Record) Resolved() int {
	n := 0
	for _, v := range r.Values() {
		if v != Unknown {
			n++
		}
	}
	return n
}

// Count is the number of fields in a Record.
const Count = 7

type rule struct {
	re  *regexp.Regexp
	set func(*Record, string)
}

// label alternatives are listed longest first so that "Program Name: X"
// captures X rather than "Name".
func labeled(labels, shape string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + labels + `)[:\s]+(` + shape + `)`)
}

const (
	shapeWords = `[A-Za-z ]+`
	shapeID    = `[A-Za-z0-9-]+`
	shapeYear  = `\d{4}`
	shapeGrade = `[A-Za-z0-9+]+`
)

var rules = []rule{
	{labeled(`Candidate Name|Student Name|Name`, shapeWords), func(r *Record, v string) { r.StudentName = v }},
	{labeled(`Registration\s*No|Enrollment\s*No|Roll\s*No`, shapeID), func(r *Record, v string) { r.RollNumber = v }},
	{labeled(`Program Name|Program|Course`, shapeWords), func(r *Record, v string) { r.Course = v }},
	{labeled(`University|Institute|College|Board`, shapeWords), func(r *Record, v string) { r.Institution = v }},
	{labeled(`Passing Year|Session|Year`, shapeYear), func(r *Record, v string) { r.Year = v }},
	{labeled(`Result|Grade|Marks`, shapeGrade), func(r *Record, v string) { r.Grade = v }},
	{labeled(`Certificate\s*No|Cert\s*ID|Cert\s*No`, shapeID), func(r *Record, v string) { r.CertificateNumber = v }},
}

var reSpace = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs to a single space and trims.
func Normalize(text string) string {
	return strings.TrimSpace(reSpace.ReplaceAllString(text, " "))
}

// Parse extracts the certificate fields from text. It never fails; fields
// without a match are Unknown.
func Parse(text string) Record {
	cleaned := Normalize(text)
	rec := NewRecord()
	for _, r := range rules {
		m := r.re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			r.set(&rec, v)
		}
	}
	return rec
}
