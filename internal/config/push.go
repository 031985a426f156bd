package config

import (
	"bytes"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Push holds delivery credentials. VAPID keys drive the Web Push adapter;
// the Telegram token drives the bot adapter. Environment variables override
// file values so deployments can keep keys out of the config tree.
type Push struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	TelegramToken   string
}

const defaultVAPIDSubject = "mailto:admin@example.com"

type rawPush struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	VAPIDSubject    string `yaml:"vapid_subject"`
	TelegramToken   string `yaml:"telegram_token"`
}

// LoadPush reads push credentials from path (missing file is not an error)
// and applies KITTYLOG_* environment overrides.
func LoadPush(path string) (Push, error) {
	var raw rawPush
	if b, err := os.ReadFile(path); err == nil {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return Push{}, errf("push keys %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Push{}, errf("read %s: %v", path, err)
	}

	p := Push{
		VAPIDPublicKey:  firstNonEmpty(os.Getenv("KITTYLOG_VAPID_PUBLIC_KEY"), raw.VAPIDPublicKey),
		VAPIDPrivateKey: firstNonEmpty(os.Getenv("KITTYLOG_VAPID_PRIVATE_KEY"), raw.VAPIDPrivateKey),
		VAPIDSubject:    firstNonEmpty(os.Getenv("KITTYLOG_VAPID_SUBJECT"), raw.VAPIDSubject, defaultVAPIDSubject),
		TelegramToken:   firstNonEmpty(os.Getenv("KITTYLOG_TELEGRAM_TOKEN"), raw.TelegramToken),
	}
	return p, nil
}

// Configured reports whether at least one delivery transport has credentials.
func (p Push) Configured() bool {
	return p.VAPIDPrivateKey != "" || p.TelegramToken != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
