// Package contacts holds the emergency contact directory for the
// serviced region.
package contacts

// Contact is a single emergency service entry.
type Contact struct {
	Name        string `json:"name"`
	Number      string `json:"number"`
	Description string `json:"description"`
}

// National returns the nationwide emergency hotline. This entry is
// always valid regardless of region.
func National() Contact {
	return Contact{
		Name:        "National Emergency Hotline",
		Number:      "911",
		Description: "Nationwide emergency response for life-threatening situations",
	}
}

// Regional returns the emergency contact directory for Apalit,
// Pampanga, national hotline first. Returned as a fresh slice.
func Regional() []Contact {
	out := make([]Contact, 0, len(regional)+1)
	out = append(out, National())
	out = append(out, regional...)
	return out
}

var regional = []Contact{
	{
		Name:        "Apalit MDRRMO",
		Number:      "(045) 302-7033",
		Description: "Municipal Disaster Risk Reduction and Management Office",
	},
	{
		Name:        "Apalit Municipal Police Station",
		Number:      "(045) 302-0257",
		Description: "Philippine National Police, Apalit station",
	},
	{
		Name:        "Apalit Bureau of Fire Protection",
		Number:      "(045) 302-0630",
		Description: "Fire and rescue services",
	},
	{
		Name:        "Apalit Rural Health Unit",
		Number:      "(045) 302-6644",
		Description: "Medical assistance and first aid",
	},
	{
		Name:        "Pampanga PDRRMO",
		Number:      "(045) 961-0921",
		Description: "Provincial Disaster Risk Reduction and Management Office",
	},
	{
		Name:        "Philippine Red Cross Pampanga",
		Number:      "(045) 961-2203",
		Description: "Rescue, relief, and welfare services",
	},
}
