package platform

import "strings"

type heuristic struct {
	match   []string
	baseURL string
	apply   func(rc *RequestConfig, creds map[string]string)
}

func bearer(rc *RequestConfig, creds map[string]string) {
	if secret := first(creds, "access_token", "bot_token"); secret != "" {
		rc.Headers["Authorization"] = "Bearer " + secret
		return
	}
	if secret, ok := findSecret(creds); ok {
		rc.Headers["Authorization"] = "Bearer " + secret
	}
}

// heuristics are checked in order; the first entry with a matching name
// fragment wins.
var heuristics = []heuristic{
	{match: []string{"slack"}, baseURL: "https://slack.com/api", apply: bearer},
	{match: []string{"discord"}, baseURL: "https://discord.com/api/v10", apply: func(rc *RequestConfig, creds map[string]string) {
		if secret := first(creds, "bot_token", "token"); secret != "" {
			rc.Headers["Authorization"] = "Bot " + secret
		}
	}},
	{match: []string{"sendgrid"}, baseURL: "https://api.sendgrid.com/v3", apply: bearer},
	{match: []string{"gmail", "google"}, baseURL: "https://gmail.googleapis.com/gmail/v1", apply: bearer},
	{match: []string{"email", "mail"}, baseURL: "https://api.sendgrid.com/v3", apply: bearer},
	{match: []string{"trello"}, baseURL: "https://api.trello.com/1", apply: func(rc *RequestConfig, creds map[string]string) {
		if key := first(creds, "api_key", "key"); key != "" {
			rc.Query["key"] = key
		}
		if token := creds["token"]; token != "" {
			rc.Query["token"] = token
		}
	}},
	{match: []string{"notion"}, baseURL: "https://api.notion.com/v1", apply: func(rc *RequestConfig, creds map[string]string) {
		bearer(rc, creds)
		rc.Headers["Notion-Version"] = "2022-06-28"
	}},
	{match: []string{"github"}, baseURL: "https://api.github.com", apply: func(rc *RequestConfig, creds map[string]string) {
		bearer(rc, creds)
		rc.Headers["Accept"] = "application/vnd.github+json"
	}},
	{match: []string{"openai"}, baseURL: "https://api.openai.com/v1", apply: bearer},
	{match: []string{"anthropic", "claude"}, baseURL: "https://api.anthropic.com/v1", apply: func(rc *RequestConfig, creds map[string]string) {
		if secret, ok := findSecret(creds); ok {
			rc.Headers["x-api-key"] = secret
		}
		rc.Headers["anthropic-version"] = "2023-06-01"
	}},
}

func fromHeuristics(platform string, creds map[string]string) RequestConfig {
	rc := RequestConfig{
		Platform:   platform,
		Headers:    make(map[string]string),
		Query:      make(map[string]string),
		BodyFormat: BodyJSON,
		heuristic:  true,
	}

	for _, h := range heuristics {
		for _, fragment := range h.match {
			if strings.Contains(platform, fragment) {
				rc.BaseURL = h.baseURL
				h.apply(&rc, creds)
				return rc
			}
		}
	}

	rc.BaseURL = "https://api." + platform + ".com"
	if secret := first(creds, "api_key", "token"); secret != "" {
		rc.Headers["Authorization"] = "Bearer " + secret
	}
	return rc
}
