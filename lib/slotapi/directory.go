package slotapi

import "github.com/fiffu/ttquick/lib/models"

type DirectoryLocation struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	ShortName         string `json:"shortName"`
	LocationType      string `json:"locationType"`
	Address           string `json:"address"`
	AddressAdditional string `json:"addressAdditional"`
	City              string `json:"city"`
	State             string `json:"state"`
	PostalCode        string `json:"postalCode"`
	CountryCode       string `json:"countryCode"`
	TzData            string `json:"tzData"`
	PhoneNumber       string `json:"phoneNumber"`
	PhoneExtension    string `json:"phoneExtension"`
	Operational       bool   `json:"operational"`
}

func (d DirectoryLocation) ToLocation() models.Location {
	phone := d.PhoneNumber
	if d.PhoneExtension != "" {
		phone += " x" + d.PhoneExtension
	}
	return models.Location{
		ID:                models.LocationID(d.ID),
		Name:              d.Name,
		ShortName:         d.ShortName,
		Address:           d.Address,
		AddressAdditional: d.AddressAdditional,
		City:              d.City,
		State:             d.State,
		PostalCode:        d.PostalCode,
		CountryCode:       d.CountryCode,
		PhoneNumber:       phone,
		TimeZone:          d.TzData,
		Operational:       d.Operational,
	}
}
