package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var (
	// ErrAlreadyMigrated is returned when the document already has a users list.
	ErrAlreadyMigrated = errors.New("config is already in multi-user format")

	// ErrNotLegacy is returned when the document has neither users nor the
	// legacy oura and telegram sections.
	ErrNotLegacy = errors.New("config is not a legacy single-user config: missing oura or telegram section")
)

// Migration describes a rewritten legacy document.
type Migration struct {
	UserID   string
	UserName string
	// Users is the number of configured users when already migrated.
	Users       int
	OuraToken   string
	TelegramRef string
	Output      []byte
}

// UserNameFor derives a display name from a user id: "default_user" becomes "Default User".
func UserNameFor(userID string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(userID, "_", " "))
}

// MigrateDocument rewrites a legacy single-user YAML document into the
// multi-user layout. ${VAR} references and comments are preserved; the
// legacy oura and telegram sections move into a single users entry.
//
// A document that already has users returns ErrAlreadyMigrated along with
// the user count.
func MigrateDocument(data []byte, userID string) (*Migration, error) {
	if userID == "" {
		userID = LegacyUserID
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ErrNotLegacy
	}
	root := doc.Content[0]

	if users := mappingValue(root, "users"); users != nil {
		return &Migration{Users: len(users.Content)}, ErrAlreadyMigrated
	}
	oura := mappingValue(root, "oura")
	telegram := mappingValue(root, "telegram")
	if oura == nil || telegram == nil {
		return nil, ErrNotLegacy
	}

	m := &Migration{
		UserID:      userID,
		UserName:    UserNameFor(userID),
		OuraToken:   scalarValue(oura, "access_token"),
		TelegramRef: scalarValue(telegram, "chat_id"),
	}

	user := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	appendPair(user, "id", strNode(m.UserID))
	appendPair(user, "name", strNode(m.UserName))
	appendPair(user, "enabled", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
	appendPair(user, "oura", oura)
	appendPair(user, "telegram", telegram)

	kept := make([]*yaml.Node, 0, len(root.Content))
	for i := 0; i+1 < len(root.Content); i += 2 {
		switch root.Content[i].Value {
		case "oura", "telegram":
			continue
		}
		kept = append(kept, root.Content[i], root.Content[i+1])
	}
	root.Content = kept
	appendPair(root, "users", &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{user}})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode migrated config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode migrated config: %w", err)
	}
	m.Output = buf.Bytes()
	return m, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalarValue(m *yaml.Node, key string) string {
	if m.Kind != yaml.MappingNode {
		return ""
	}
	if v := mappingValue(m, key); v != nil && v.Kind == yaml.ScalarNode {
		return v.Value
	}
	return ""
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, strNode(key), value)
}
