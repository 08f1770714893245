package catalog

import "github.com/rcookie777/pizza-api/pkg/measurement"

var defaultEstablishments = []measurement.Establishment{
	{ID: "extreme_pizza", Name: "Extreme Pizza", Address: "1419 S Fern St, Arlington, VA 22202"},
	{ID: "colony_grill", Name: "Colony Grill", Address: "2800 Clarendon Blvd, Arlington, VA 22201"},
	{ID: "wise_guy", Name: "Wise Guy Pizza", Address: "1735 North Lynn St, Arlington, VA 22209"},
	{ID: "night_hawk", Name: "Night Hawk Brewery & Pizza", Address: "1201 S Joyce St, Ste C10, Arlington, VA 22202"},
	{ID: "district_pizza", Name: "District Pizza Palace", Address: "2325 S Eads St, Arlington, VA 22202"},
}
