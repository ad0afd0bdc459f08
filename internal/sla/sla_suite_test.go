package sla

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSLA(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SLA Analytics Suite")
}
