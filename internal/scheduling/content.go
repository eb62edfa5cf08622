package scheduling

// ContentType discriminates the content payload carried by an event.
type ContentType string

const (
	ContentSMS    ContentType = "sms"
	ContentEmail  ContentType = "email"
	ContentCustom ContentType = "custom"
)

func (c ContentType) IsValid() bool {
	switch c {
	case ContentSMS, ContentEmail, ContentCustom:
		return true
	}
	return false
}

// Content is the message payload owned by exactly one event. It is a tagged
// union: only the fields relevant to Type are populated.
//
// Each event owns its own Content value even when two events send identical
// text, so editing one event's content never affects another.
type Content struct {
	Type ContentType `json:"type"`

	// Message maps language code to message text (sms and email).
	Message map[string]string `json:"message,omitempty"`

	// Subject maps language code to subject line (email only).
	Subject map[string]string `json:"subject,omitempty"`

	// CustomContentID names a registered custom content handler (custom only).
	CustomContentID string `json:"custom_content_id,omitempty"`
}

// Copy returns a deep copy. Used when cloning events so that the copy's
// content can be edited independently.
func (c Content) Copy() Content {
	out := Content{
		Type:            c.Type,
		CustomContentID: c.CustomContentID,
	}
	if c.Message != nil {
		out.Message = make(map[string]string, len(c.Message))
		for k, v := range c.Message {
			out.Message[k] = v
		}
	}
	if c.Subject != nil {
		out.Subject = make(map[string]string, len(c.Subject))
		for k, v := range c.Subject {
			out.Subject[k] = v
		}
	}
	return out
}

// SubjectForLanguage picks the subject line for the given language code,
// falling back to the default language and then to any available text.
func (c Content) SubjectForLanguage(lang, defaultLang string) string {
	if text, ok := c.Subject[lang]; ok && text != "" {
		return text
	}
	if text, ok := c.Subject[defaultLang]; ok && text != "" {
		return text
	}
	for _, text := range c.Subject {
		if text != "" {
			return text
		}
	}
	return ""
}

// MessageForLanguage picks the message text for the given language code,
// falling back to the default language and then to any available text.
func (c Content) MessageForLanguage(lang, defaultLang string) string {
	if text, ok := c.Message[lang]; ok && text != "" {
		return text
	}
	if text, ok := c.Message[defaultLang]; ok && text != "" {
		return text
	}
	for _, text := range c.Message {
		if text != "" {
			return text
		}
	}
	return ""
}
