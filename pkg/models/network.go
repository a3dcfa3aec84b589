package models

// NetworkState is the backend-independent state of a network or subnet
type NetworkState string

const (
	NetworkStateUnknown   NetworkState = "unknown"
	NetworkStatePending   NetworkState = "pending"
	NetworkStateAvailable NetworkState = "available"
	NetworkStateDown      NetworkState = "down"
	NetworkStateError     NetworkState = "error"
)

// DefaultNetworkCIDR is used when a network is created without a CIDR block
const DefaultNetworkCIDR = "10.0.0.0/16"
