package learning

type PriceFilter string

const (
	PriceAny  PriceFilter = ""
	PriceFree PriceFilter = "free"
	PricePaid PriceFilter = "paid"
)

// CourseQuery is the validated predicate set a catalog listing is built
// from. Zero values mean "no constraint".
type CourseQuery struct {
	Category  string
	Level     string
	Price     PriceFilter
	MinRating *float64
	Search    string
	Limit     int
}
