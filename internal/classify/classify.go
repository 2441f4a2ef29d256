// Package classify assigns content types, topical signals, and categories to items using keyword
// heuristics. Everything here is pure and safe for concurrent use.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/techradar/internal/radar"
)

var signalKeywords = map[radar.Signal][]string{
	radar.SignalSecurity:    {"security", "cve", "vulnerability", "patch", "보안", "취약", "취약점", "패치"},
	radar.SignalBreaking:    {"breaking", "major", "incompatible", "migration", "호환", "중단", "파괴적"},
	radar.SignalDeprecation: {"deprecated", "removed", "end of life", "지원 종료", "종료", "폐기", "삭제"},
	radar.SignalRelease:     {"release", "ga", "announcement", "출시", "발표", "공개", "신규"},
	radar.SignalPerf:        {"performance", "faster", "optimization", "성능", "최적화", "개선"},
	radar.SignalMigration:   {"migration", "migrate", "upgrade", "업그레이드", "마이그레이션", "이관"},
	radar.SignalBugfix:      {"bug fix", "bugfix", "fix", "fixed", "버그", "수정"},
	radar.SignalTooling:     {"tool", "tooling", "cli", "sdk", "plugin", "플러그인", "도구"},
	radar.SignalAPI:         {"api", "endpoint", "rest", "graphql", "스펙", "인터페이스"},
}

var companyDomains = []string{
	"toss.tech",
	"techblog.woowahan.com",
	"d2.naver.com",
	"helloworld.kurly.com",
	"tech.kakaoenterprise.com",
	"tech.devsisters.com",
	"tech.socarcorp.kr",
	"techblog.yogiyo.co.kr",
	"hyperconnect.github.io",
	"jojoldu.tistory.com",
	"javacan.tistory.com",
	"cheese10yun.github.io",
	"medium.com",
}

var (
	companySourceKeywords = []string{"toss", "우아한", "naver", "kakao", "쿠팡", "당근", "뱅크샐러드"}
	newsSourceKeywords    = []string{"geeknews", "news", "hada"}

	releaseURL     = regexp.MustCompile(`release|releases|changelog|advisory|security|tag|version`)
	releaseText    = regexp.MustCompile(`release|changelog|breaking changes|v\d+\.|version`)
	githubReleases = regexp.MustCompile(`github\.com/[^/]+/[^/]+/(releases|tags)/`)
	bracketPrefix  = regexp.MustCompile(`^\[[^\]]+\]`)
)

const shortSnippetRunes = 120

// Heuristic is the keyword-based radar.Classifier.
type Heuristic struct{}

// New returns the default classifier.
func New() Heuristic {
	return Heuristic{}
}

// DetectSignals returns the signals whose keywords appear in text, in declaration order.
func (Heuristic) DetectSignals(text string) []radar.Signal {
	lower := strings.ToLower(text)
	var hits []radar.Signal
	for _, signal := range radar.Signals {
		if containsAny(lower, signalKeywords[signal]) {
			hits = append(hits, signal)
		}
	}
	return hits
}

// Classify picks the first matching content type: release note, company blog, news, other.
func (Heuristic) Classify(in radar.ClassifyInput) radar.ContentType {
	url := strings.ToLower(in.URL)
	title := strings.ToLower(in.Title)
	snippet := strings.ToLower(in.Snippet)
	source := strings.ToLower(in.SourceName)
	tags := make(map[string]struct{}, len(in.SourceTags))
	for _, tag := range in.SourceTags {
		tags[strings.ToLower(tag)] = struct{}{}
	}

	if releaseURL.MatchString(url) || releaseText.MatchString(title) ||
		releaseText.MatchString(snippet) || githubReleases.MatchString(url) {
		return radar.ContentTypeReleaseNote
	}

	if _, ok := tags["company"]; ok || containsAny(url, companyDomains) ||
		containsAny(source, companySourceKeywords) {
		return radar.ContentTypeCompanyBlog
	}

	snippetLen := utf8.RuneCountInString(in.Snippet)
	if _, ok := tags["news"]; ok || containsAny(source, newsSourceKeywords) ||
		bracketPrefix.MatchString(in.Title) || (snippetLen > 0 && snippetLen < shortSnippetRunes) {
		return radar.ContentTypeNews
	}

	return radar.ContentTypeOther
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
