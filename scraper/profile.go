package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/datenorm"
)

// ErrInvalidProfile is returned by Validate when a required locator or URL
// is missing.
var ErrInvalidProfile = errors.New("invalid site profile")

// EntrySelectors locate the fields of one result-list entry, relative to the
// entry element.
type EntrySelectors struct {
	Title       browser.Locator `yaml:"title"`
	Date        browser.Locator `yaml:"date"`
	Description browser.Locator `yaml:"description"`
	Image       browser.Locator `yaml:"image"`
	// ImageAttribute holds the image URL. Default: "src".
	ImageAttribute string `yaml:"image_attribute"`
}

// SiteProfile describes how to drive one news site's search interface.
type SiteProfile struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	// FeedURL is an optional RSS/Atom search URL with a {query} placeholder,
	// used by the feed source instead of the browser.
	FeedURL string `yaml:"feed_url,omitempty"`

	PopupClose   browser.Locator `yaml:"popup_close"`
	SearchOpen   browser.Locator `yaml:"search_open"`
	SearchInput  browser.Locator `yaml:"search_input"`
	SearchSubmit browser.Locator `yaml:"search_submit"`

	ResultList  browser.Locator `yaml:"result_list"`
	ResultEntry browser.Locator `yaml:"result_entry"`
	NextPage    browser.Locator `yaml:"next_page"`

	ResetTopics  browser.Locator `yaml:"reset_topics"`
	SeeAllTopics browser.Locator `yaml:"see_all_topics"`
	// TopicLabel is matched with the topic name as its text.
	TopicLabel browser.Locator `yaml:"topic_label"`

	SortSelect browser.Locator `yaml:"sort_select"`
	SortNewest string          `yaml:"sort_newest"`

	Entry EntrySelectors `yaml:"entry"`

	// TrustedImageHost is the storage domain images must come from to be
	// downloaded.
	TrustedImageHost string `yaml:"trusted_image_host"`
	// DateLayouts override datenorm.DefaultFormats when set.
	DateLayouts []string `yaml:"date_layouts,omitempty"`
	// Topics is the allow-list of topic labels the site offers.
	Topics []string `yaml:"topics,omitempty"`
}

// LATimes returns the profile for the Los Angeles Times search page.
func LATimes() *SiteProfile {
	return &SiteProfile{
		Name:    "Los Angeles Times",
		BaseURL: "https://www.latimes.com/",

		PopupClose:   browser.CSS("a.met-flyout-close"),
		SearchOpen:   browser.CSS(`button[data-element="search-button"]`),
		SearchInput:  browser.CSS(`input[name="q"]`),
		SearchSubmit: browser.CSS(`button[data-element="search-submit-button"]`),

		ResultList:  browser.CSS("ul.search-results-module-results-menu"),
		ResultEntry: browser.CSS("li"),
		NextPage:    browser.CSS("div.search-results-module-next-page a"),

		ResetTopics:  browser.CSS("a").WithText("Reset"),
		SeeAllTopics: browser.CSS("span").WithText("See All"),
		TopicLabel:   browser.CSS("label.checkbox-input-label span"),

		SortSelect: browser.CSS(`select[name="s"]`),
		SortNewest: "Newest",

		Entry: EntrySelectors{
			Title:          browser.CSS(".promo-title a"),
			Date:           browser.CSS(".promo-timestamp"),
			Description:    browser.CSS(".promo-description"),
			Image:          browser.CSS("img"),
			ImageAttribute: "src",
		},

		TrustedImageHost: "s3.amazonaws.com",
		Topics:           LATimesTopics,
	}
}

// Validate checks that every locator the harvester needs is set.
func (p *SiteProfile) Validate() error {
	if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
		return fmt.Errorf("%w: base_url: %v", ErrInvalidProfile, err)
	}

	required := map[string]browser.Locator{
		"search_input":  p.SearchInput,
		"search_submit": p.SearchSubmit,
		"result_list":   p.ResultList,
		"result_entry":  p.ResultEntry,
		"next_page":     p.NextPage,
		"topic_label":   p.TopicLabel,
		"sort_select":   p.SortSelect,
		"entry.title":   p.Entry.Title,
		"entry.date":    p.Entry.Date,
	}
	var missing []string
	for name, loc := range required {
		if loc.IsZero() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidProfile, strings.Join(missing, ", "))
	}

	if p.SortNewest == "" {
		return fmt.Errorf("%w: missing sort_newest", ErrInvalidProfile)
	}

	return nil
}

// Formats returns the date formats for this site.
func (p *SiteProfile) Formats() []datenorm.FormatSpec {
	if len(p.DateLayouts) == 0 {
		return datenorm.DefaultFormats
	}

	formats := make([]datenorm.FormatSpec, 0, len(p.DateLayouts))
	for _, layout := range p.DateLayouts {
		formats = append(formats, datenorm.FormatSpec{Name: layout, Layout: layout})
	}
	return formats
}

// ImageAttribute returns the attribute holding entry image URLs.
func (p *SiteProfile) ImageAttribute() string {
	if p.Entry.ImageAttribute == "" {
		return "src"
	}
	return p.Entry.ImageAttribute
}

// FeedURLFor fills the feed URL template with the escaped search term.
func (p *SiteProfile) FeedURLFor(searchTerm string) string {
	return strings.ReplaceAll(p.FeedURL, "{query}", url.QueryEscape(searchTerm))
}
