package container

import (
	"os"
	"runtime"
)

// Platform holds host specific mounts needed for GPU rendering.
type Platform struct {
	Mounts []Mount
}

var linuxPlatformMounts = []Mount{
	{HostPath: "/tmp/.X11-unix", ContainerPath: "/tmp/.X11-unix"},
	{HostPath: "/run/user/1000", ContainerPath: "/run/user/1000"},
	{HostPath: "/usr/share/vulkan/icd.d", ContainerPath: "/usr/share/vulkan/icd.d", ReadOnly: true},
	{HostPath: "/usr/lib/x86_64-linux-gnu/libGLX_nvidia.so.0", ContainerPath: "/usr/lib/x86_64-linux-gnu/libGLX_nvidia.so.0", ReadOnly: true},
	{HostPath: "/usr/lib/x86_64-linux-gnu/libvulkan.so.1", ContainerPath: "/usr/lib/x86_64-linux-gnu/libvulkan.so.1", ReadOnly: true},
}

// DetectPlatform is called once at startup. Only mounts present on the host
// are kept.
func DetectPlatform() Platform {
	return detectPlatform(runtime.GOOS, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
}

func detectPlatform(goos string, exists func(string) bool) Platform {
	if goos != "linux" {
		return Platform{}
	}
	var p Platform
	for _, m := range linuxPlatformMounts {
		if exists(m.HostPath) {
			p.Mounts = append(p.Mounts, m)
		}
	}
	return p
}
