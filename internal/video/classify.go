package video

import (
	"net/http"
	"regexp"
	"strings"
)

// Category is the user-facing bucket a backend failure falls into.
type Category string

const (
	CategoryRateLimited      Category = "RateLimited"
	CategoryBotCheck         Category = "BotCheckRequired"
	CategoryUnsupportedURL   Category = "UnsupportedUrl"
	CategoryVideoUnavailable Category = "VideoUnavailable"
	CategoryAgeRestricted    Category = "AgeRestricted"
	CategoryAPIKey           Category = "ApiKeyProblem"
	CategoryNoData           Category = "NoDataReturned"
	CategoryGeneric          Category = "Generic"
)

const excerptLength = 100

const genericMessage = "An unexpected error occurred while trying to fetch video details. Please try a different video or check the URL."

// Classification is the result of matching raw failure text.
type Classification struct {
	Category Category
	Message  string
	// Excerpt is a truncated copy of the raw text for logs only.
	Excerpt string
}

type classifierRule struct {
	category Category
	message  string
	phrases  []string
	pattern  *regexp.Regexp
}

func (r classifierRule) matches(text string) bool {
	if r.pattern != nil && r.pattern.MatchString(text) {
		return true
	}
	for _, phrase := range r.phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Order matters: the first matching rule wins.
var classifierRules = []classifierRule{
	{
		category: CategoryRateLimited,
		message:  "Our service is experiencing high demand from YouTube. Please try again in a few moments.",
		phrases:  []string{"HTTP Error 429", "Too Many Requests"},
	},
	{
		category: CategoryBotCheck,
		message:  "YouTube is asking to verify you're not a bot. This can happen with high server traffic. Please try again later.",
		pattern:  regexp.MustCompile(`Sign in to confirm you.re not a bot`),
	},
	{
		category: CategoryUnsupportedURL,
		message:  "The provided URL is not supported or is invalid.",
		phrases:  []string{"Unsupported URL"},
	},
	{
		category: CategoryVideoUnavailable,
		message:  "This video is unavailable (private, deleted, or restricted by YouTube).",
		phrases:  []string{"Video unavailable", "Private video", "This video is unavailable", "user restricted access to this video"},
	},
	{
		category: CategoryAgeRestricted,
		message:  "This video is age-restricted and cannot be processed.",
		phrases:  []string{"age restricted", "Sign in to confirm your age", "login required to confirm your age"},
	},
	{
		category: CategoryVideoUnavailable,
		message:  "This video is no longer available (Error 410: Gone). It may have been permanently deleted.",
		phrases:  []string{"ERROR 410", "HTTP Error 410"},
	},
	{
		category: CategoryAPIKey,
		message:  "The YouTube API key is invalid, disabled, or out of quota. Please contact the site administrator.",
		phrases: []string{
			"API key not valid", "keyInvalid", "API_KEY_INVALID", "API key expired",
			"accessNotConfigured", "has not been used in project",
			"quotaExceeded", "dailyLimitExceeded",
		},
	},
	{
		category: CategoryNoData,
		message:  "Could not retrieve any information for this video. It might be invalid or an issue with the processing service.",
		phrases:  []string{"No data returned"},
	},
	{
		category: CategoryNoData,
		message:  "The URL does not seem to point to a valid video or audio.",
		phrases:  []string{"does not point to a valid video or audio stream"},
	},
}

// Classify maps raw backend error text onto a Category. Matching is plain
// substring search, so unmatched text always lands in Generic.
func Classify(text string) Classification {
	excerpt := truncate(strings.TrimSpace(text), excerptLength)
	for _, rule := range classifierRules {
		if rule.matches(text) {
			return Classification{Category: rule.category, Message: rule.message, Excerpt: excerpt}
		}
	}
	return Classification{Category: CategoryGeneric, Message: genericMessage, Excerpt: excerpt}
}

// ClassifyAPI maps a YouTube Data API failure (status plus the first
// error reason) onto a Category.
func ClassifyAPI(status int, reason, message string) Classification {
	excerpt := truncate(strings.TrimSpace(message), excerptLength)
	keyProblem := Classification{
		Category: CategoryAPIKey,
		Message:  classifierRuleMessage(CategoryAPIKey),
		Excerpt:  excerpt,
	}
	switch reason {
	case "keyInvalid", "keyExpired", "accessNotConfigured", "quotaExceeded", "dailyLimitExceeded", "ipRefererBlocked", "forbidden":
		return keyProblem
	case "rateLimitExceeded", "userRateLimitExceeded":
		return Classification{Category: CategoryRateLimited, Message: classifierRuleMessage(CategoryRateLimited), Excerpt: excerpt}
	case "videoNotFound", "notFound":
		return Classification{Category: CategoryVideoUnavailable, Message: classifierRuleMessage(CategoryVideoUnavailable), Excerpt: excerpt}
	}
	switch status {
	case http.StatusTooManyRequests:
		return Classification{Category: CategoryRateLimited, Message: classifierRuleMessage(CategoryRateLimited), Excerpt: excerpt}
	case http.StatusGone:
		gone := Classify("HTTP Error 410")
		gone.Excerpt = excerpt
		return gone
	}
	c := Classify(message)
	if c.Category == CategoryGeneric && status == http.StatusBadRequest && strings.Contains(message, "API key") {
		return keyProblem
	}
	return c
}

func classifierRuleMessage(category Category) string {
	for _, rule := range classifierRules {
		if rule.category == category {
			return rule.message
		}
	}
	return genericMessage
}
