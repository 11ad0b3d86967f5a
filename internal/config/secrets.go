package config

import "net/url"

const redacted = "***"

// sensitiveQueryKeys are feed URL query parameters that carry credentials.
var sensitiveQueryKeys = []string{"token", "key", "api_key", "apikey", "secret"}

// RedactedConfig returns a copy of cfg that is safe to log: secrets are
// replaced by "***", credentials embedded in the feed URL are masked, and the
// slices are copied so the result shares no mutable state with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Feed.URL = RedactURL(cfg.Feed.URL)
	redact(&out.Redis.Password)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.Events = cloneStrings(cfg.Notify.Events)

	return out
}

// RedactURL masks the userinfo password and credential-like query values of
// a feed URL so it can be logged or sent in alerts. Unparseable input is
// returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			changed = true
		}
	}

	q := u.Query()
	for _, k := range sensitiveQueryKeys {
		if q.Get(k) != "" {
			q.Set(k, redacted)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
