package registry

// seedAgents returns the fixed agent set with display metadata and
// capability lists. Statuses start idle with empty active sets.
func seedAgents() []Agent {
	return []Agent{
		{
			ID:          ContentAgent,
			Name:        "Content Intelligence Agent",
			Description: "Analyzes and optimizes content for SEO performance.",
			Status:      StatusIdle,
			Capabilities: []string{
				"Content gap analysis",
				"Semantic keyword optimization",
				"Content structure recommendations",
				"Readability assessment",
			},
		},
		{
			ID:          UXAgent,
			Name:        "User Experience Agent",
			Description: "Monitors and improves user experience metrics.",
			Status:      StatusIdle,
			Capabilities: []string{
				"Core Web Vitals analysis",
				"Mobile usability audits",
				"Page load optimization",
				"User journey mapping",
			},
		},
		{
			ID:          LocalAgent,
			Name:        "Local SEO Agent",
			Description: "Optimizes for local search visibility.",
			Status:      StatusIdle,
			Capabilities: []string{
				"Local listings management",
				"Google Business Profile optimization",
				"Local keyword targeting",
				"Review sentiment analysis",
			},
		},
		{
			ID:          TrustAgent,
			Name:        "E-E-A-T Trust Agent",
			Description: "Enhances expertise, authority, and trustworthiness signals.",
			Status:      StatusIdle,
			Capabilities: []string{
				"Author expertise validation",
				"Citation and reference analysis",
				"Trust signal identification",
				"Authority enhancement recommendations",
			},
		},
	}
}
