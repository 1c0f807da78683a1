package services

// similarityRatio Ratcliff/Obershelp法による類似度 2*M/T（0〜1）
// 最長一致ブロックを再帰的に左右へ広げて一致文字数Mを数える
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	index := make(map[rune][]int, len(rb))
	for j, r := range rb {
		index[r] = append(index[r], j)
	}
	m := matchingCharacters(ra, rb, index, 0, len(ra), 0, len(rb))
	return 2.0 * float64(m) / float64(total)
}

func matchingCharacters(a, b []rune, index map[rune][]int, alo, ahi, blo, bhi int) int {
	i, j, size := longestMatch(a, index, alo, ahi, blo, bhi)
	if size == 0 {
		return 0
	}
	n := size
	if alo < i && blo < j {
		n += matchingCharacters(a, b, index, alo, i, blo, j)
	}
	if i+size < ahi && j+size < bhi {
		n += matchingCharacters(a, b, index, i+size, ahi, j+size, bhi)
	}
	return n
}

// longestMatch a[alo:ahi]とb[blo:bhi]の最長共通部分文字列
// 同じ長さならaで先に現れるもの、次にbで先に現れるものを返す
func longestMatch(a []rune, index map[rune][]int, alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range index[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestsize
}
