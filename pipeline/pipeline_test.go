package pipeline_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/q713/simbricks-sub001/chanx"
	"github.com/q713/simbricks-sub001/cmn/cos"
	"github.com/q713/simbricks-sub001/pipeline"
)

func produceRange(n int) pipeline.Producer[int] {
	return func(_ context.Context, out *chanx.Channel[int]) error {
		for i := 0; i < n; i++ {
			if !out.Push(i) {
				return nil
			}
		}
		return nil
	}
}

func double() pipeline.Transform[int] {
	return func(_ context.Context, in, out *chanx.Channel[int]) error {
		for {
			v, ok := in.Pop()
			if !ok {
				return nil
			}
			if !out.Push(v * 2) {
				return nil
			}
		}
	}
}

func collectInto(dst *[]int, mu *sync.Mutex) pipeline.Consumer[int] {
	return func(_ context.Context, in *chanx.Channel[int]) error {
		for {
			v, ok := in.Pop()
			if !ok {
				return nil
			}
			mu.Lock()
			*dst = append(*dst, v)
			mu.Unlock()
		}
	}
}

var _ = Describe("Pipeline", func() {
	It("drains producer through transforms into the consumer", func() {
		var got []int
		var mu sync.Mutex
		p := pipeline.Pipeline[int]{
			Producer:   produceRange(5),
			Transforms: []pipeline.Transform[int]{double()},
			Consumer:   collectInto(&got, &mu),
			Capacity:   2,
		}
		Expect(p.Run(context.Background())).To(Succeed())
		Expect(got).To(Equal([]int{0, 2, 4, 6, 8}))
	})

	It("poisons downstream and closes upstream when a transform raises a fatal error", func() {
		var got []int
		var mu sync.Mutex
		failing := func(_ context.Context, in, out *chanx.Channel[int]) error {
			for {
				v, ok := in.Pop()
				if !ok {
					return nil
				}
				if v == 2 {
					return cos.NewErrInvariant("saw poisoned value %d", v)
				}
				out.Push(v)
			}
		}
		p := pipeline.Pipeline[int]{
			Producer:   produceRange(10),
			Transforms: []pipeline.Transform[int]{failing},
			Consumer:   collectInto(&got, &mu),
			Capacity:   1,
		}
		err := p.Run(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(cos.IsErrInvariant(err)).To(BeTrue())
	})

	It("runs many pipelines in parallel, each draining into its own consumer", func() {
		var got1, got2 []int
		var mu1, mu2 sync.Mutex
		p1 := pipeline.Pipeline[int]{Producer: produceRange(3), Transforms: []pipeline.Transform[int]{double()}, Consumer: collectInto(&got1, &mu1)}
		p2 := pipeline.Pipeline[int]{Producer: produceRange(3), Transforms: []pipeline.Transform[int]{double()}, Consumer: collectInto(&got2, &mu2)}
		Expect(pipeline.RunAll(context.Background(), p1, p2)).To(Succeed())
		Expect(got1).To(Equal([]int{0, 2, 4}))
		Expect(got2).To(Equal([]int{0, 2, 4}))
	})
})
