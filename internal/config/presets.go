package config

// DefaultPresets returns the built-in searches used when none are configured.
func DefaultPresets() []Preset {
	return []Preset{
		{
			Name:       "credit_union_pain",
			Query:      "credit union (frustrated OR nightmare OR stuck OR legacy OR outdated)",
			Subreddits: []string{"CreditUnions", "banking", "FinancialCareers", "smallbusiness"},
		},
		{
			Name:       "smb_finance",
			Query:      "small business (accounting OR invoicing OR cashflow) (frustrated OR help OR nightmare)",
			Subreddits: []string{"smallbusiness", "Entrepreneur", "Bookkeeping", "accounting"},
		},
		{
			Name:       "saas_gaps",
			Query:      `"is there any" OR "looking for" (software OR tool OR app)`,
			Subreddits: []string{"SaaS", "startups", "Entrepreneur", "nocode", "smallbusiness"},
		},
		{
			Name:       "automation_needs",
			Query:      "automate (how do I OR is there any) (workflow OR process OR manual)",
			Subreddits: []string{"Entrepreneur", "smallbusiness", "startups", "SaaS"},
		},
		{
			Name:       "m_and_a_tools",
			Query:      "due diligence (tool OR software OR automate OR manual)",
			Subreddits: []string{"mergersandacquisitions", "privateequity", "FinancialCareers"},
		},
	}
}
