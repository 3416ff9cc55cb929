package rentals

const TopicRentalConfirmed = "rental.confirmed"

// Partition key = rental id, so every event of one rental keeps its order.
func PartitionKey(rentalID string) []byte { return []byte(rentalID) }
