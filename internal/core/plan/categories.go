package plan

// validTypes is the set of category types the directory API accepts for
// nearby search. Requests with unknown types are rejected by the API, so the
// planner drops them up front.
var validTypes = map[string]struct{}{}

func init() {
	for _, t := range ValidCategories {
		validTypes[t] = struct{}{}
	}
}

// ValidCategories lists the accepted category types, grouped roughly by
// vertical.
var ValidCategories = []string{
	// Food and drink
	"restaurant", "cafe", "coffee_shop", "bar", "bakery", "fast_food_restaurant",
	"pizza_restaurant", "sushi_restaurant", "chinese_restaurant", "mexican_restaurant",
	"italian_restaurant", "indian_restaurant", "thai_restaurant", "japanese_restaurant",
	"korean_restaurant", "vietnamese_restaurant", "mediterranean_restaurant",
	"steak_house", "seafood_restaurant", "breakfast_restaurant", "brunch_restaurant",
	"ice_cream_shop", "dessert_shop", "juice_shop", "tea_house", "wine_bar",
	"brewery", "winery",

	// Health and wellness
	"doctor", "dentist", "hospital", "pharmacy", "physiotherapist", "chiropractor",
	"massage", "spa", "yoga_studio", "fitness_center", "gym", "veterinary_care",

	// Beauty
	"beauty_salon", "hair_salon", "nail_salon", "barber_shop",

	// Trades and home services
	"plumber", "electrician", "painter", "locksmith", "roofing_contractor",
	"moving_company", "storage", "laundry", "courier_service",

	// Retail
	"florist", "pet_store", "shopping_mall", "supermarket", "grocery_store",
	"convenience_store", "clothing_store", "shoe_store", "jewelry_store",
	"electronics_store", "furniture_store", "hardware_store", "home_goods_store",
	"book_store", "toy_store", "gift_shop", "sporting_goods_store", "bicycle_store",
	"liquor_store", "cell_phone_store", "department_store", "discount_store",

	// Automotive
	"car_dealer", "car_rental", "car_repair", "car_wash", "gas_station",
	"electric_vehicle_charging_station", "parking",

	// Professional services
	"lawyer", "accounting", "insurance_agency", "real_estate_agency", "bank", "atm",
	"travel_agency", "consultant", "marketing_agency", "employment_agency",

	// Lodging and leisure
	"hotel", "motel", "bed_and_breakfast", "campground", "resort_hotel",
	"movie_theater", "bowling_alley", "amusement_park", "night_club", "casino",
	"tourist_attraction", "museum", "art_gallery", "zoo", "aquarium", "park",

	// Education and childcare
	"school", "primary_school", "secondary_school", "preschool", "child_care_agency",
	"tutoring_service", "driving_school", "language_school",

	// Other
	"church", "mosque", "synagogue", "hindu_temple", "cemetery", "funeral_home",
	"library", "community_center", "event_venue", "wedding_venue", "photographer",
	"tailor", "shoe_repair", "dry_cleaning",
}

// IsValidCategory reports whether the type is accepted by the directory API.
func IsValidCategory(t string) bool {
	_, ok := validTypes[t]
	return ok
}
