package formdata

import (
	"net/url"
	"strings"
)

// Attachment is one name/URL pair discovered in a form payload.
type Attachment struct {
	Name string
	URL  string
}

// Attachments walks the payload tree in document order and collects attachment
// descriptors. Two shapes are recognized: an "attachments" object whose entries
// carry "name" and "url" members, and a "linked" object whose entries carry a
// "url" (the entry key doubles as the document name). Each node is visited once.
func Attachments(v *Value) []Attachment {
	var found []Attachment
	scanAttachments(v, &found)
	return found
}

func scanAttachments(v *Value, found *[]Attachment) {
	if v == nil {
		return
	}
	switch v.Kind {
	case KindObject:
		for i := range v.Members {
			m := &v.Members[i]
			switch {
			case m.Key == "attachments" && m.Value.Kind == KindObject:
				collectNamed(&m.Value, found)
			case m.Key == "linked" && m.Value.Kind == KindObject:
				collectLinked(&m.Value, found)
			default:
				scanAttachments(&m.Value, found)
			}
		}
	case KindArray:
		for i := range v.Items {
			scanAttachments(&v.Items[i], found)
		}
	}
}

func collectNamed(obj *Value, found *[]Attachment) {
	for i := range obj.Members {
		entry := &obj.Members[i].Value
		name := entry.Get("name").StringValue()
		u := entry.Get("url").StringValue()
		if name != "" && u != "" {
			*found = append(*found, Attachment{Name: name, URL: u})
		}
	}
}

func collectLinked(obj *Value, found *[]Attachment) {
	for i := range obj.Members {
		entry := &obj.Members[i].Value
		u := entry.Get("url").StringValue()
		if u != "" {
			*found = append(*found, Attachment{Name: obj.Members[i].Key, URL: u})
		}
	}
}

// ExtractKeyValuePairs walks the payload tree for string members named
// nodeName whose value contains the separator, splits on the separator and
// pairs adjacent tokens as {second: first}. With the GetOrganized ";#"
// convention, "Indgående;#Ansøgning" yields {"Ansøgning": "Indgående"}:
// the document title maps to its category.
func ExtractKeyValuePairs(v *Value, nodeName, separator string) map[string]string {
	result := make(map[string]string)
	extractPairs(v, nodeName, separator, result)
	return result
}

func extractPairs(v *Value, nodeName, separator string, result map[string]string) {
	if v == nil {
		return
	}
	switch v.Kind {
	case KindObject:
		for i := range v.Members {
			m := &v.Members[i]
			if m.Key == nodeName && m.Value.Kind == KindString && strings.Contains(m.Value.Str, separator) {
				tokens := strings.Split(m.Value.Str, separator)
				for j := 0; j+1 < len(tokens); j += 2 {
					result[strings.TrimSpace(tokens[j+1])] = strings.TrimSpace(tokens[j])
				}
				continue
			}
			extractPairs(&m.Value, nodeName, separator, result)
		}
	case KindArray:
		for i := range v.Items {
			extractPairs(&v.Items[i], nodeName, separator, result)
		}
	}
}

// FilenameFromURL extracts the unescaped final path segment of a URL.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		segments := strings.Split(rawURL, "/")
		return segments[len(segments)-1]
	}
	segments := strings.Split(parsed.Path, "/")
	filename := segments[len(segments)-1]
	if unescaped, err := url.PathUnescape(filename); err == nil {
		return unescaped
	}
	return filename
}
