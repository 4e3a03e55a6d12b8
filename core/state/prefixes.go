package state

var (
	kvPrefix             = []byte("kv:")
	auctionPrefix        = []byte("auction/record:")
	auctionStatusPrefix  = []byte("auction/status:")
	custodyAccountPrefix = []byte("custody/account:")
	custodyMintPrefix    = []byte("custody/mint:")
	reservePrefix        = []byte("custody/reserve:")
)
