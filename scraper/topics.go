package scraper

import "slices"

// LATimesTopics are the topic filters offered on the Los Angeles Times
// search page.
var LATimesTopics = []string{
	"World Nation", "Politics", "California", "Business", "Opinion",
	"Entertainment Arts", "Babylon Beyond", "Movies", "Books", "World Now",
	"Archives", "Television", "Sports", "Travel Experiences", "Soccer", "Food",
	"Top of the Ticket", "Opinion L.A.", "Olympics", "Music", "Obituaries",
	"Awards", "Technology and the Internet", "Science Medicine",
	"High School Sports", "Show Tracker", "24 Frames", "Recipes",
	"Culture Monster Blog", "Real Estate", "Nation Now", "Autos",
	"Technology Blog", "Lifestyle", "La Plaza", "Sports Now", "Jacket Copy",
	"Money Company", "Letters to the Editor", "Company Town", "Dodgers",
	"Lakers", "The Big Picture", "Company Town Blog", "Politi-Cal", "Angels",
	"L.A. Unleashed", "UCLA Sports", "USC Sports", "Climate Environment",
	"Clippers", "Pop Hiss", "Readers Representative", "Olympics Blog",
	"Orange County", "Daily Dish", "For the Record", "Hero Complex Blog",
	"Hockey", "Image", "All the Rage", "Awards Tracker", "L.A. at Home",
	"Afterword", "Booster Shots", "Housing Homelessness",
	"Varsity Times Insider", "About the Los Angeles Times", "L.A. Now",
	"Consumer Attorneys of Southern",
}

// AllowsTopic reports whether topic is in the profile's allow-list. Matching
// is exact.
func (p *SiteProfile) AllowsTopic(topic string) bool {
	return slices.Contains(p.Topics, topic)
}

// PartitionTopics splits requested topics into those on the allow-list and
// those that are not, preserving order and dropping duplicates.
func (p *SiteProfile) PartitionTopics(requested []string) (allowed, rejected []string) {
	seen := map[string]bool{}
	for _, topic := range requested {
		if seen[topic] {
			continue
		}
		seen[topic] = true

		if p.AllowsTopic(topic) {
			allowed = append(allowed, topic)
		} else {
			rejected = append(rejected, topic)
		}
	}
	return allowed, rejected
}
