package script

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// role is one semantic element the generated tests interact with.
type role struct {
	Name  string
	Query string
}

var roles = []role{
	{"add_to_cart_buttons", `button[onclick*="addToCart"], .add-to-cart`},
	{"cart_items", `.cart-item, .item`},
	{"quantity_inputs", `input[type="number"], input[name*="quantity"]`},
	{"discount_input", `input[name*="discount"], input[id*="discount"], #discountCode`},
	{"apply_discount_btn", `button[onclick*="discount"], #applyDiscount`},
	{"name_input", `input[name="name"], #name, input[placeholder*="name"]`},
	{"email_input", `input[name="email"], #email, input[type="email"]`},
	{"address_input", `input[name="address"], #address, textarea[name="address"]`},
	{"shipping_options", `input[name="shipping"], input[type="radio"][value*="shipping"]`},
	{"payment_options", `input[name="payment"], input[type="radio"][value*="payment"]`},
	{"pay_button", `button[onclick*="pay"], #payNow`},
	{"total_price", `.total, #total, .price-total`},
	{"error_messages", `.error, .error-message, .validation-error`},
}

var keySectionClass = regexp.MustCompile(`cart|checkout|payment|form|total`)

type InputInfo struct {
	Tag         string `json:"tag"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Class       string `json:"class,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type FormInfo struct {
	ID     string      `json:"id,omitempty"`
	Class  string      `json:"class,omitempty"`
	Action string      `json:"action,omitempty"`
	Method string      `json:"method,omitempty"`
	Inputs []InputInfo `json:"inputs"`
}

type ButtonInfo struct {
	Text    string `json:"text"`
	ID      string `json:"id,omitempty"`
	Class   string `json:"class,omitempty"`
	OnClick string `json:"onclick,omitempty"`
	Type    string `json:"type,omitempty"`
}

type SectionInfo struct {
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Class   string `json:"class,omitempty"`
	Preview string `json:"text_preview"`
}

type Structure struct {
	Forms       []FormInfo    `json:"forms"`
	Buttons     []ButtonInfo  `json:"buttons"`
	Inputs      []InputInfo   `json:"inputs"`
	KeySections []SectionInfo `json:"key_sections"`
}

// Page is what the generators know about the page under test.
type Page struct {
	Title     string
	Selectors map[string]string
	Structure Structure
}

// Analyze builds the selector catalogue and structural summary of markup.
func Analyze(markup string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &Page{
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Selectors: selectors(doc),
		Structure: structure(doc),
	}, nil
}

// Selector returns the catalogued selector for name, or fallback.
func (p *Page) Selector(name, fallback string) string {
	if s, ok := p.Selectors[name]; ok && s != "" {
		return s
	}
	return fallback
}

func selectors(doc *goquery.Document) map[string]string {
	out := make(map[string]string, len(roles))
	for _, r := range roles {
		if el := doc.Find(r.Query).First(); el.Length() > 0 {
			out[r.Name] = preferred(el)
		}
	}

	// A button labelled "pay now" beats the generic pay_button match.
	doc.Find("button").EachWithBreak(func(_ int, btn *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(btn.Text()), "pay now") {
			if id, _ := btn.Attr("id"); id != "" {
				out["pay_button"] = "#" + id
			} else if class := firstClass(btn); class != "" {
				out["pay_button"] = "." + class
			} else {
				out["pay_button"] = "button"
			}
			return false
		}
		return true
	})
	return out
}

// preferred picks id, then name, then first class, then tag.
func preferred(el *goquery.Selection) string {
	if id, _ := el.Attr("id"); id != "" {
		return "#" + id
	}
	if name, _ := el.Attr("name"); name != "" {
		return "[name='" + name + "']"
	}
	if class := firstClass(el); class != "" {
		return "." + class
	}
	return goquery.NodeName(el)
}

func firstClass(el *goquery.Selection) string {
	class, _ := el.Attr("class")
	if fields := strings.Fields(class); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func structure(doc *goquery.Document) Structure {
	st := Structure{
		Forms:       []FormInfo{},
		Buttons:     []ButtonInfo{},
		Inputs:      []InputInfo{},
		KeySections: []SectionInfo{},
	}

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		info := FormInfo{
			ID:     attr(form, "id"),
			Class:  attr(form, "class"),
			Action: attr(form, "action"),
			Method: attr(form, "method"),
			Inputs: []InputInfo{},
		}
		form.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
			info.Inputs = append(info.Inputs, inputInfo(in))
		})
		st.Forms = append(st.Forms, info)
	})

	doc.Find("button").Each(func(_ int, btn *goquery.Selection) {
		st.Buttons = append(st.Buttons, ButtonInfo{
			Text:    strings.TrimSpace(btn.Text()),
			ID:      attr(btn, "id"),
			Class:   attr(btn, "class"),
			OnClick: attr(btn, "onclick"),
			Type:    attr(btn, "type"),
		})
	})

	doc.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		st.Inputs = append(st.Inputs, inputInfo(in))
	})

	doc.Find("div, section").Each(func(_ int, sec *goquery.Selection) {
		class := attr(sec, "class")
		if !keySectionClass.MatchString(class) {
			return
		}
		st.KeySections = append(st.KeySections, SectionInfo{
			Tag:     goquery.NodeName(sec),
			ID:      attr(sec, "id"),
			Class:   class,
			Preview: preview(sec.Text(), 100),
		})
	})
	return st
}

func inputInfo(in *goquery.Selection) InputInfo {
	_, required := in.Attr("required")
	return InputInfo{
		Tag:         goquery.NodeName(in),
		Type:        attr(in, "type"),
		Name:        attr(in, "name"),
		ID:          attr(in, "id"),
		Placeholder: attr(in, "placeholder"),
		Class:       attr(in, "class"),
		Required:    required,
	}
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > n {
		return string(r[:n])
	}
	return text
}
