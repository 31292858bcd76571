package rating

// scale converts between the public 1500-scale and the Glicko-2 scale.
const scale = 173.7178

// ToInternal converts a public rating and RD to (mu, phi).
func ToInternal(rating, rd float64) (mu, phi float64) {
	return (rating - DefaultRating) / scale, rd / scale
}

// ToPublic converts (mu, phi) back to a public rating and RD.
func ToPublic(mu, phi float64) (rating, rd float64) {
	return mu*scale + DefaultRating, phi * scale
}
