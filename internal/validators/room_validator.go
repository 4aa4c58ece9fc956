package validators

import (
	"strings"

	"convoy/internal/models"
)

func ValidateCreateRoomRequest(req *models.CreateRoomRequest) ValidationErrors {
	errs := ValidateStruct(req)

	errs = append(errs, validatePlace("source", &req.Source)...)
	errs = append(errs, validatePlace("destination", &req.Destination)...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validatePlace(field string, place *models.Place) ValidationErrors {
	if strings.TrimSpace(place.Address) == "" && place.Coords == nil {
		return ValidationErrors{{
			Field:   field,
			Tag:     "place",
			Message: ErrMissingPlace.Error(),
		}}
	}
	if place.Coords != nil {
		if err := ValidateCoordinates(place.Coords); err != nil {
			return ValidationErrors{{
				Field:   field + ".coords",
				Tag:     "coordinates",
				Value:   "",
				Message: err.Error(),
			}}
		}
	}
	return nil
}
