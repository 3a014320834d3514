// Package generator derives stable numeric identities from the machine's
// network address, so separately deployed instances mint disjoint record
// ids.
package generator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
)

// snowflake node ids live in a ten bit space
const nodeIDSpace = 1024

func IDbyIP(ip string) uint32 {
	var id uint32
	binary.Read(bytes.NewBuffer(net.ParseIP(ip).To4()), binary.BigEndian, &id)
	return id
}

// NodeID folds an IPv4 address into the snowflake node id range.
func NodeID(ip string) int64 {
	return int64(IDbyIP(ip)) % nodeIDSpace
}

// LocalIP reports the first non-loopback IPv4 address of this host.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", errors.New("no local ip")
}
