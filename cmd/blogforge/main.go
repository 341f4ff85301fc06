package main

import (
	"os"

	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/cmd"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if err := cmd.Execute(); err != nil {
		klog.Flush()
		os.Exit(1)
	}
}
